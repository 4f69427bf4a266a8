package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending database migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return env.withApp(func(ctx context.Context, app *App) error {
			return runMigrate(ctx, app, env.Out)
		})
	}
	return cmd
}

func runMigrate(ctx context.Context, app *App, out io.Writer) error {
	if err := app.runMigrations(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrations applied (%s)\n", app.Conn.Dialect())
	return nil
}

func newSeedCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Create one catalog entry for every role and permission kind",
		Flags:       flag.NewFlagSet("seed", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return env.withApp(func(ctx context.Context, app *App) error {
			if err := app.Catalog.Seed(ctx); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "Catalog seeded")
			return nil
		})
	}
	return cmd
}

func newCreateUserCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "create-user",
		Description: "Create an activated user",
		Flags:       flag.NewFlagSet("create-user", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("login", "", "User login (required)")
	cmd.Flags.String("email", "", "User email")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		login := cmd.Flags.Lookup("login").Value.String()
		email := cmd.Flags.Lookup("email").Value.String()
		if login == "" {
			return fmt.Errorf("login is required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			user, err := app.Users.Create(ctx, login, email)
			if err != nil {
				return err
			}
			return printJSON(env.Out, user)
		})
	}
	return cmd
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
