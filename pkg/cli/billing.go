package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/quartermaster/pkg/billing"
)

func newCreateBillCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "create-bill",
		Description: "Open a bill in a project",
		Flags:       flag.NewFlagSet("create-bill", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	project := cmd.Flags.Int64("project", 0, "Project id (required)")
	cmd.Flags.String("title", "", "Bill title (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		title := cmd.Flags.Lookup("title").Value.String()
		if *project == 0 || title == "" {
			return fmt.Errorf("project and title are required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			bill, err := app.Billing.CreateBill(ctx, *project, title)
			if err != nil {
				return err
			}
			return printJSON(env.Out, bill)
		})
	}
	return cmd
}

func newAddPositionCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "add-position",
		Description: "Add a position to an open bill",
		Flags:       flag.NewFlagSet("add-position", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	bill := cmd.Flags.Int64("bill", 0, "Bill id (required)")
	cmd.Flags.String("title", "", "Position title")
	cost := cmd.Flags.Float64("cost", 0, "Position cost")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *bill == 0 {
			return fmt.Errorf("bill is required")
		}

		title := cmd.Flags.Lookup("title").Value.String()
		return env.withApp(func(ctx context.Context, app *App) error {
			position, err := app.Billing.AddPosition(ctx, *bill, title, *cost)
			if err != nil {
				return err
			}
			return printJSON(env.Out, position)
		})
	}
	return cmd
}

func newCloseBillCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "close-bill",
		Description: "Close a bill and record its final amount",
		Flags:       flag.NewFlagSet("close-bill", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	bill := cmd.Flags.Int64("bill", 0, "Bill id (required)")
	cmd.Flags.String("as", "", "Login that must hold the close_bill capability; empty skips the check")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *bill == 0 {
			return fmt.Errorf("bill is required")
		}

		login := cmd.Flags.Lookup("as").Value.String()
		return env.withApp(func(ctx context.Context, app *App) error {
			closed, err := closeBill(ctx, app, login, *bill)
			if err != nil {
				return err
			}
			return printJSON(env.Out, closed)
		})
	}
	return cmd
}

func closeBill(ctx context.Context, app *App, login string, billID int64) (*billing.Bill, error) {
	if login == "" {
		return app.Billing.CloseBill(ctx, billID)
	}
	return app.Billing.CloseBillForLogin(ctx, login, billID)
}
