package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsageRoot() (*Command, *bytes.Buffer) {
	out := &bytes.Buffer{}
	env := &Env{
		Context: context.Background(),
		Out:     out,
		Open: func(context.Context) (*App, error) {
			return nil, errors.New("no app in this test")
		},
	}
	return NewRootCommand(env), out
}

func TestNewRootCommand(t *testing.T) {
	root, _ := newUsageRoot()

	assert.Equal(t, "quartermaster", root.Name)
	assert.NotEmpty(t, root.Description)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{
		"migrate",
		"seed",
		"create-user",
		"create-project",
		"add-member",
		"add-members",
		"members",
		"can",
		"create-bill",
		"add-position",
		"close-bill",
		"ops",
	}

	for _, cmdName := range expectedCommands {
		require.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
		assert.Equal(t, cmdName, root.Subcommands[cmdName].Name)
		assert.NotNil(t, root.Subcommands[cmdName].Run)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestNewRootCommand_NilEnv(t *testing.T) {
	root := NewRootCommand(nil)
	assert.Equal(t, "quartermaster", root.Name)
}

func TestCommandUsage(t *testing.T) {
	root, out := newUsageRoot()

	require.NoError(t, root.usage())

	output := out.String()
	assert.Contains(t, output, "Usage: quartermaster <command> [args]")
	assert.Contains(t, output, "Commands:")
	assert.Contains(t, output, "close-bill")
	assert.Contains(t, output, "create-project")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("add-member")), bytes.Index(out.Bytes(), []byte("seed")),
		"commands are listed alphabetically")
}

func TestCommandExecute_NoArgs(t *testing.T) {
	root, out := newUsageRoot()

	err := root.ExecuteArgs(nil)

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Usage: quartermaster <command> [args]")
}

func TestCommandExecute_HelpFlag(t *testing.T) {
	testCases := []struct {
		name     string
		helpFlag string
	}{
		{"lowercase -h", "-h"},
		{"uppercase -H", "-H"},
		{"lowercase --help", "--help"},
		{"mixed case --Help", "--Help"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, out := newUsageRoot()

			err := root.ExecuteArgs([]string{tc.helpFlag})

			assert.NoError(t, err)
			assert.Contains(t, out.String(), "Usage: quartermaster <command> [args]")
		})
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root, _ := newUsageRoot()

	err := root.ExecuteArgs([]string{"nonexistent"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestCommandExecute_SubcommandWithArgs(t *testing.T) {
	root, _ := newUsageRoot()

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name:        "test",
		Description: "Test command",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	err := root.ExecuteArgs([]string{"test", "--project", "7", "extra"})

	assert.NoError(t, err)
	assert.Equal(t, []string{"--project", "7", "extra"}, receivedArgs)
}

func TestCommandExecute_RequiredFlags(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"create-user without login", []string{"create-user"}, "login is required"},
		{"create-project without name", []string{"create-project", "--as", "alice"}, "as and name are required"},
		{"add-member without project", []string{"add-member", "--user-id", "u1"}, "user-id and project are required"},
		{"add-member with unknown role", []string{"add-member", "--user-id", "u1", "--project", "1", "--role", "owner"}, "unknown role: OWNER"},
		{"add-members without ids", []string{"add-members", "--as", "alice", "--project", "1"}, "as, project and user-ids are required"},
		{"members without project", []string{"members"}, "project is required"},
		{"can without login", []string{"can", "--project", "1"}, "login and project are required"},
		{"create-bill without title", []string{"create-bill", "--project", "1"}, "project and title are required"},
		{"add-position without bill", []string{"add-position", "--cost", "1"}, "bill is required"},
		{"close-bill without bill", []string{"close-bill"}, "bill is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, _ := newUsageRoot()

			err := root.ExecuteArgs(tc.args)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCommandExecute_OpenFailure(t *testing.T) {
	root, _ := newUsageRoot()

	err := root.ExecuteArgs([]string{"seed"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open app: no app in this test")
}

func TestCommandExecute_BadFlag(t *testing.T) {
	root, _ := newUsageRoot()

	err := root.ExecuteArgs([]string{"members", "--project", "not-a-number"})

	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}
