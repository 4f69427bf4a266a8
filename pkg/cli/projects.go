package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/platinummonkey/quartermaster/pkg/projects"
	"github.com/platinummonkey/quartermaster/pkg/rbac"
)

func newCreateProjectCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "create-project",
		Description: "Create a project with the creator as its admin",
		Flags:       flag.NewFlagSet("create-project", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("as", "", "Login of the creating user (required)")
	cmd.Flags.String("name", "", "Project name (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		login := cmd.Flags.Lookup("as").Value.String()
		name := cmd.Flags.Lookup("name").Value.String()
		if login == "" || name == "" {
			return fmt.Errorf("as and name are required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			project, err := app.Projects.CreateProjectForLogin(ctx, login, name)
			if err != nil {
				return err
			}
			return printJSON(env.Out, project)
		})
	}
	return cmd
}

func newAddMemberCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "add-member",
		Description: "Add a user to a project with a role, without an authorization check",
		Flags:       flag.NewFlagSet("add-member", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("user-id", "", "Id of the user to add (required)")
	project := cmd.Flags.Int64("project", 0, "Project id (required)")
	cmd.Flags.String("role", string(rbac.RoleBillContributor), "Role granted to the new member")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		userID := cmd.Flags.Lookup("user-id").Value.String()
		role := rbac.RoleKind(strings.ToUpper(cmd.Flags.Lookup("role").Value.String()))
		if userID == "" || *project == 0 {
			return fmt.Errorf("user-id and project are required")
		}
		if !role.Valid() {
			return fmt.Errorf("unknown role: %s", role)
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			member, err := app.Projects.AddMember(ctx, userID, *project, role)
			if err != nil {
				return err
			}
			return printJSON(env.Out, member)
		})
	}
	return cmd
}

func newAddMembersCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "add-members",
		Description: "Add users to a project as bill contributors on behalf of a member",
		Flags:       flag.NewFlagSet("add-members", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("as", "", "Login of the acting member (required)")
	project := cmd.Flags.Int64("project", 0, "Project id (required)")
	cmd.Flags.String("user-ids", "", "Comma-separated user ids (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		login := cmd.Flags.Lookup("as").Value.String()
		userIDs := splitList(cmd.Flags.Lookup("user-ids").Value.String())
		if login == "" || *project == 0 || len(userIDs) == 0 {
			return fmt.Errorf("as, project and user-ids are required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			members, err := app.Projects.AddMembers(ctx, login, *project, userIDs)
			if err != nil {
				return err
			}
			return printJSON(env.Out, members)
		})
	}
	return cmd
}

func newMembersCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "members",
		Description: "List the members of a project",
		Flags:       flag.NewFlagSet("members", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	project := cmd.Flags.Int64("project", 0, "Project id (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *project == 0 {
			return fmt.Errorf("project is required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			// read-only listing goes to a replica when one is configured
			store := projects.NewStore(app.Conn.Replica())
			if _, err := store.GetProject(ctx, *project); err != nil {
				return err
			}
			members, err := store.FindMembersForProject(ctx, *project)
			if err != nil {
				return err
			}
			return printJSON(env.Out, members)
		})
	}
	return cmd
}

func newCanCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "can",
		Description: "Check whether a user holds a capability in a project",
		Flags:       flag.NewFlagSet("can", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(env.Out)
	cmd.Flags.String("login", "", "User login (required)")
	project := cmd.Flags.Int64("project", 0, "Project id (required)")
	cmd.Flags.String("capability", string(rbac.CapabilityAddMember), "Capability to check")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		login := cmd.Flags.Lookup("login").Value.String()
		capability := rbac.Capability(cmd.Flags.Lookup("capability").Value.String())
		if login == "" || *project == 0 {
			return fmt.Errorf("login and project are required")
		}

		return env.withApp(func(ctx context.Context, app *App) error {
			decision, err := app.Checker.Can(ctx, login, *project, capability)
			if err != nil {
				return err
			}
			return printJSON(env.Out, decision)
		})
	}
	return cmd
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
