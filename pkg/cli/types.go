package cli

import (
	"context"
	"io"

	"fetchutils/pkg/config"
	"fetchutils/pkg/display"
	"fetchutils/pkg/fetcher"
	"fetchutils/pkg/history"
)

// Flag types.
const (
	flagBool   = "bool"
	flagString = "string"
	flagList   = "list" // repeatable string
)

type Flag struct {
	Name  string
	Short string
	Type  string
	Desc  string
}

type Arg struct {
	Name string
	Type string
	Desc string
}

type Command struct {
	Name     string
	Desc     string
	Args     []*Arg
	Flags    []*Flag
	Subs     []*Command
	Parent   *Command
	Examples []string
}

type Topic struct {
	Name string
	Desc string
	Text string
}

// Invocation is a parsed command line. Flag values are bool, string or
// []string according to the flag type.
type Invocation struct {
	Command *Command
	Args    map[string]string
	Flags   map[string]any
	Global  map[string]any
}

func (inv *Invocation) Bool(name string) bool {
	v, _ := inv.Flags[name].(bool)
	if !v {
		v, _ = inv.Global[name].(bool)
	}
	return v
}

func (inv *Invocation) String(name string) string {
	v, _ := inv.Flags[name].(string)
	if v == "" {
		v, _ = inv.Global[name].(string)
	}
	return v
}

func (inv *Invocation) List(name string) []string {
	v, _ := inv.Flags[name].([]string)
	if v == nil {
		v, _ = inv.Global[name].([]string)
	}
	return v
}

// ExecutionResult is the outcome of a command.
type ExecutionResult struct {
	ExitCode int
}

type Handler interface {
	Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	return f(ctx, inv)
}

// Managers holds what the command handlers work with.
type Managers struct {
	Disp    display.Display
	SysCfg  config.ReadOnly
	Env     *fetcher.Environment
	History *history.Store
	// Out receives the fetched payload.
	Out io.Writer
}
