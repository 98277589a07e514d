package cli

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed cli.def
var DefaultDSL string

// Engine parses command lines against a command definition and dispatches
// them to registered handlers.
// Mutable
type Engine struct {
	GlobalFlags []*Flag
	Commands    []*Command
	Topics      []*Topic
	Handlers    map[string]Handler
	Theme       *Theme
	// Out receives help output.
	Out io.Writer
}

func NewEngine(dsl string) (*Engine, error) {
	e := &Engine{
		Handlers: make(map[string]Handler),
		Out:      os.Stdout,
	}
	e.Theme = NewTheme(e.Out)
	if err := newParser(dsl, e).parse(); err != nil {
		return nil, err
	}
	e.Commands = append(e.Commands, &Command{
		Name: "help",
		Desc: "Show help information",
	})
	return e, nil
}

// SetOutput redirects help output to w.
func (e *Engine) SetOutput(w io.Writer) {
	e.Out = w
	e.Theme = NewTheme(w)
}

func (e *Engine) Register(cmdPath string, h Handler) {
	e.Handlers[cmdPath] = h
}

type ParseResult struct {
	Invocation *Invocation
	Help       bool
	HelpArgs   []string
	Error      error
}

func (e *Engine) Run(ctx context.Context, args []string) (*ExecutionResult, error) {
	res := e.Parse(args)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.Help {
		e.PrintHelp(res.HelpArgs...)
		return &ExecutionResult{ExitCode: 0}, nil
	}
	return e.Execute(ctx, res.Invocation)
}

func (e *Engine) Parse(args []string) *ParseResult {
	res := &ParseResult{
		Invocation: &Invocation{
			Args:   make(map[string]string),
			Flags:  make(map[string]any),
			Global: make(map[string]any),
		},
	}

	// Global flags and help may appear anywhere
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--help" || arg == "-h" {
			res.Help = true
			continue
		}
		n, err := matchFlag(e.GlobalFlags, res.Invocation.Global, args, i)
		if err != nil {
			res.Error = err
			return res
		}
		if n == 0 {
			remaining = append(remaining, arg)
		}
		i += max(n-1, 0)
	}

	if len(remaining) > 0 && remaining[0] == "help" {
		res.Help = true
		remaining = remaining[1:]
	}
	if res.Help || len(remaining) == 0 {
		res.Help = true
		res.HelpArgs = remaining
		return res
	}

	cmd, err := resolve(e.Commands, remaining[0])
	if err != nil {
		res.Error = err
		return res
	}
	rest := remaining[1:]
	for len(cmd.Subs) > 0 {
		if len(rest) == 0 || strings.HasPrefix(rest[0], "-") {
			// a group without its subcommand
			res.Help = true
			res.HelpArgs = []string{getCmdPath(cmd)}
			return res
		}
		if cmd, err = resolve(cmd.Subs, rest[0]); err != nil {
			res.Error = err
			return res
		}
		rest = rest[1:]
	}

	res.Invocation.Command = cmd
	if err := e.parseParams(res.Invocation, cmd, rest); err != nil {
		res.Error = err
	}
	return res
}

// matchFlag stores the value of args[i] when it names one of flags and
// returns the number of arguments consumed, 0 when args[i] is no such flag.
func matchFlag(flags []*Flag, values map[string]any, args []string, i int) (int, error) {
	arg := args[i]
	for _, f := range flags {
		if arg != "--"+f.Name && (f.Short == "" || arg != "-"+f.Short) {
			continue
		}
		if f.Type == flagBool {
			values[f.Name] = true
			return 1, nil
		}
		if i+1 >= len(args) {
			return 0, fmt.Errorf("flag %s needs a value", arg)
		}
		if f.Type == flagList {
			list, _ := values[f.Name].([]string)
			values[f.Name] = append(list, args[i+1])
		} else {
			values[f.Name] = args[i+1]
		}
		return 2, nil
	}
	return 0, nil
}

func (e *Engine) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	path := getCmdPath(inv.Command)
	if h, ok := e.Handlers[path]; ok {
		return h.Execute(ctx, inv)
	}
	return nil, fmt.Errorf("no handler registered for command: %s", path)
}

// resolve finds the command named word in cmds, accepting unambiguous
// prefixes.
func resolve(cmds []*Command, word string) (*Command, error) {
	var matches []*Command
	for _, c := range cmds {
		if c.Name == word {
			return c, nil
		}
		if strings.HasPrefix(c.Name, word) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("unknown command: %s", word)
	case 1:
		return matches[0], nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	return nil, fmt.Errorf("ambiguous command: %s (candidates: %s)", word, strings.Join(names, ", "))
}

func (e *Engine) parseParams(inv *Invocation, cmd *Command, args []string) error {
	argIdx := 0
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			n, err := matchFlag(cmd.Flags, inv.Flags, args, i)
			if err != nil {
				return err
			}
			if n > 0 {
				i += n - 1
				continue
			}
			return fmt.Errorf("unknown flag %s for %s", arg, cmd.Name)
		}
		if argIdx >= len(cmd.Args) {
			return fmt.Errorf("unexpected argument %q for %s", arg, cmd.Name)
		}
		inv.Args[cmd.Args[argIdx].Name] = arg
		argIdx++
	}

	// Check for missing required arguments
	if argIdx < len(cmd.Args) {
		return fmt.Errorf("argument %s is missing", cmd.Args[argIdx].Name)
	}
	return nil
}

func (e *Engine) PrintHelp(args ...string) {
	if len(args) > 0 {
		subject := args[0]
		for _, topic := range e.Topics {
			if topic.Name == subject || strings.HasPrefix(topic.Name, subject) {
				e.PrintTopicHelp(topic)
				return
			}
		}
		if c := e.lookup(args); c != nil && c.Name != "help" {
			e.PrintCommandHelp(c)
			return
		}
	}

	t := e.Theme
	out := e.Out
	fmt.Fprintf(out, "%s\n", t.Styled(t.Cyan.Bold(true), "fetchutils - fetch anything, read it as anything"))
	fmt.Fprintf(out, "\n%s\n", t.Styled(t.Bold, "Usage:"))
	fmt.Fprintf(out, "  fetchutils %s\n", t.Styled(t.Yellow, "[flags] <command> <uri> ..."))
	fmt.Fprintf(out, "\n%s\n", t.Styled(t.Bold, "Global Flags:"))
	fmt.Fprintf(out, "  %-22s %s\n", t.Styled(t.Cyan, "--help, -h"), t.Styled(t.Dim, "Show help [command | topic]"))
	for _, f := range e.GlobalFlags {
		fmt.Fprintf(out, "  %-22s %s\n", t.Styled(t.Cyan, flagUsage(f)), t.Styled(t.Dim, f.Desc))
	}

	categories := []struct {
		name string
		icon string
		cmds []string
	}{
		{"FETCH", t.IconFetch, []string{"text", "json", "html", "image", "head"}},
		{"STORE", t.IconStore, []string{"save", "extract", "history"}},
	}
	shown := map[string]bool{"help": true}
	for _, cat := range categories {
		var cmds []*Command
		for _, name := range cat.cmds {
			for _, c := range e.Commands {
				if c.Name == name {
					cmds = append(cmds, c)
					shown[name] = true
				}
			}
		}
		e.printCategory(cat.icon+" "+cat.name, cmds)
	}

	var misc []*Command
	for _, c := range e.Commands {
		if !shown[c.Name] {
			misc = append(misc, c)
		}
	}
	e.printCategory(t.Bullet+" MISC", misc)

	if len(e.Topics) > 0 {
		fmt.Fprintf(out, "\n%s %s\n", t.IconHelp, t.Styled(t.Bold, "Topics:"))
		for _, topic := range e.Topics {
			fmt.Fprintf(out, "  %s %s %s\n", t.Styled(t.Cyan, topic.Name), e.getPadding(topic.Name, 20), t.Styled(t.Dim, topic.Desc))
		}
	}
	fmt.Fprintf(out, "\nType '%s' for more details.\n", t.Styled(t.Yellow, "fetchutils help <command>"))
}

// lookup resolves a command path given as words or as a single
// slash separated string, nil when it names no command.
func (e *Engine) lookup(words []string) *Command {
	if len(words) == 1 {
		words = strings.Split(words[0], "/")
	}
	var cmd *Command
	cmds := e.Commands
	for _, w := range words {
		c, err := resolve(cmds, w)
		if err != nil {
			break
		}
		cmd, cmds = c, c.Subs
	}
	return cmd
}

func (e *Engine) printCategory(title string, cmds []*Command) {
	if len(cmds) == 0 {
		return
	}
	t := e.Theme
	fmt.Fprintf(e.Out, "\n%s\n", t.Styled(t.Bold, title))
	for i, c := range cmds {
		prefix := t.BoxTree
		if i == len(cmds)-1 {
			prefix = t.BoxLast
		}
		fmt.Fprintf(e.Out, "%s %s %s %s\n", prefix, t.Styled(t.Cyan, c.Name), e.getPadding(c.Name, 16), t.Styled(t.Dim, c.Desc))
	}
}

func (e *Engine) getPadding(name string, target int) string {
	t := e.Theme
	dots := target - len(name)
	if dots < 2 {
		dots = 2
	}
	return t.Styled(t.Dim, strings.Repeat(".", dots))
}

func (e *Engine) PrintCommandHelp(c *Command) {
	t := e.Theme
	out := e.Out
	usage := strings.ReplaceAll(getCmdPath(c), "/", " ")
	for _, a := range c.Args {
		usage += " <" + a.Name + ">"
	}
	fmt.Fprintf(out, "\n%s %s\n", t.Styled(t.Bold, "Command:"), t.Styled(t.Cyan, usage))
	fmt.Fprintf(out, "%s %s\n\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, c.Desc))
	if len(c.Args) > 0 {
		fmt.Fprintf(out, "%s\n", t.Styled(t.Bold, "Arguments:"))
		for _, a := range c.Args {
			fmt.Fprintf(out, "  %-15s %s\n", t.Styled(t.Yellow, "<"+a.Name+">"), t.Styled(t.Dim, a.Desc))
		}
		fmt.Fprintln(out)
	}
	if len(c.Flags) > 0 {
		fmt.Fprintf(out, "%s\n", t.Styled(t.Bold, "Flags:"))
		for _, f := range c.Flags {
			fmt.Fprintf(out, "  %-22s %s\n", t.Styled(t.Cyan, flagUsage(f)), t.Styled(t.Dim, f.Desc))
		}
		fmt.Fprintln(out)
	}
	if len(c.Subs) > 0 {
		fmt.Fprintf(out, "%s\n", t.Styled(t.Bold, "Subcommands:"))
		for _, sub := range c.Subs {
			fmt.Fprintf(out, "  %s %s %s\n", t.Styled(t.Cyan, sub.Name), e.getPadding(sub.Name, 16), t.Styled(t.Dim, sub.Desc))
		}
		fmt.Fprintln(out)
	}
	if len(c.Examples) > 0 {
		fmt.Fprintf(out, "%s\n", t.Styled(t.Bold, "Examples:"))
		for _, ex := range c.Examples {
			fmt.Fprintf(out, "  %s %s\n", t.Styled(t.Green, "$"), ex)
		}
		fmt.Fprintln(out)
	}
}

func (e *Engine) PrintTopicHelp(topic *Topic) {
	t := e.Theme
	fmt.Fprintf(e.Out, "\n%s %s\n", t.Styled(t.Bold, "Topic:"), t.Styled(t.Cyan, topic.Name))
	fmt.Fprintf(e.Out, "%s %s\n\n", t.Styled(t.Bold, "Description:"), t.Styled(t.Dim, topic.Desc))
	fmt.Fprintf(e.Out, "%s\n\n", topic.Text)
}

func flagUsage(f *Flag) string {
	s := "--" + f.Name
	if f.Short != "" {
		s += ", -" + f.Short
	}
	if f.Type != flagBool {
		s += " <value>"
	}
	return s
}

func getCmdPath(c *Command) string {
	if c.Parent == nil {
		return c.Name
	}
	return getCmdPath(c.Parent) + "/" + c.Name
}
