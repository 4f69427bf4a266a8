package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/quartermaster/pkg/observability"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// Env is what every command shares: the context, where output goes and how
// the app is opened
type Env struct {
	Context context.Context
	Out     io.Writer
	Open    func(ctx context.Context) (*App, error)
}

// DefaultEnv writes to stdout and opens the app from the environment
func DefaultEnv() *Env {
	return &Env{
		Context: context.Background(),
		Out:     os.Stdout,
		Open:    OpenApp,
	}
}

// withApp opens the app, runs fn and closes the app again
func (e *Env) withApp(fn func(ctx context.Context, app *App) error) error {
	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := e.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open app: %w", err)
	}
	defer app.Close()

	return fn(observability.WithLogger(ctx, app.Logger), app)
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	if env == nil {
		env = DefaultEnv()
	}

	root := &Command{
		Name:        "quartermaster",
		Description: "Quartermaster - project membership and bill management",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("quartermaster", flag.ContinueOnError),
		out:         env.Out,
	}

	for _, cmd := range []*Command{
		newMigrateCommand(env),
		newSeedCommand(env),
		newCreateUserCommand(env),
		newCreateProjectCommand(env),
		newAddMemberCommand(env),
		newAddMembersCommand(env),
		newMembersCommand(env),
		newCanCommand(env),
		newCreateBillCommand(env),
		newAddPositionCommand(env),
		newCloseBillCommand(env),
		newOpsCommand(env),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args, the first of which names the
// subcommand
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flags (case-insensitive)
	firstArg := strings.ToLower(args[0])
	if firstArg == "-h" || firstArg == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

func (c *Command) usage() error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintln(out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
