package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"fetchutils/pkg/cli"
	"fetchutils/pkg/config"
	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"
	"fetchutils/pkg/history"

	"github.com/sirupsen/logrus"
)

//go:embed assets
var bundled embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res, err := FetchEngine(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(res.ExitCode)
}

func FetchEngine(ctx context.Context, args []string) (*cli.ExecutionResult, error) {
	// 1. Parse cli.def
	cliEngine, err := cli.NewEngine(cli.DefaultDSL)
	if err != nil {
		return nil, fmt.Errorf("INTERNAL ERROR:  parsing CLI definition: %w", err)
	}

	// 2. Parse command line arguments
	pr := cliEngine.Parse(args)

	// 3. Initialize console, setup verbosity
	disp := display.NewConsole()
	defer disp.Close()

	if pr.Invocation.Bool("verbose") {
		disp.SetVerbose(true)
		logrus.SetLevel(logrus.DebugLevel)
	}

	// 4. Generate any errors etc for the command line parsing
	if pr.Error != nil {
		return nil, pr.Error
	}
	if pr.Help {
		cliEngine.PrintHelp(pr.HelpArgs...)
		return &cli.ExecutionResult{ExitCode: 0}, nil
	}

	// 5. Load configuration and build the fetch environment
	sysCfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	sysCfg.Freeze()

	assets, err := fs.Sub(bundled, "assets")
	if err != nil {
		return nil, fmt.Errorf("INTERNAL ERROR:  bundled assets: %w", err)
	}
	env := &fetcher.Environment{
		Assets: fetcher.Layered(os.DirFS(sysCfg.GetAssetDir()), assets),
	}
	if sysCfg.GetHTTP().CheckConnectivity {
		env.Connectivity = fetcher.InterfaceConnectivity{}
	}

	// 6. Execute commands
	cli.Register(cliEngine, &cli.Managers{
		Disp:    disp,
		SysCfg:  sysCfg,
		Env:     env,
		History: history.Open(sysCfg.GetHistoryFile()),
		Out:     os.Stdout,
	})
	return cliEngine.Execute(ctx, pr.Invocation)
}
