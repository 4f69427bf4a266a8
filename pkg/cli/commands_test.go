package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/billing"
	"github.com/platinummonkey/quartermaster/pkg/config"
	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/projects"
	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
	"github.com/platinummonkey/quartermaster/pkg/users"
)

type cliFixture struct {
	root     *Command
	out      *bytes.Buffer
	cfg      *config.Config
	recorder *audit.Recorder
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Ops: config.OpsConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			ShutdownTimeout: time.Second,
		},
		Database: storage.ConnectionConfig{
			Dialect:    storage.DialectSQLite,
			PrimaryURL: "file:" + filepath.Join(t.TempDir(), "quartermaster.db") + "?_foreign_keys=on",
			MaxConns:   1,
		},
		Cache: config.CacheConfig{Mode: config.CacheModeMemory, TTL: time.Minute, Size: 100},
		Observability: config.ObservabilityConfig{
			MetricsEnabled:     true,
			OTelServiceVersion: "test",
		},
	}
}

func openTestApp(cfg *config.Config, extraAudit ...audit.Logger) func(ctx context.Context) (*App, error) {
	return func(ctx context.Context) (*App, error) {
		conn, err := storage.NewConnectionManager(cfg.Database, nil)
		if err != nil {
			return nil, err
		}
		return NewApp(ctx, cfg, observability.NewNopLogger(), conn, extraAudit...)
	}
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	f := &cliFixture{
		out:      &bytes.Buffer{},
		cfg:      testConfig(t),
		recorder: audit.NewRecorder(),
	}
	f.root = NewRootCommand(&Env{
		Context: context.Background(),
		Out:     f.out,
		Open:    openTestApp(f.cfg, f.recorder),
	})

	f.run(t, "migrate")
	f.run(t, "seed")
	return f
}

func (f *cliFixture) run(t *testing.T, args ...string) string {
	t.Helper()
	f.out.Reset()
	require.NoError(t, f.root.ExecuteArgs(args))
	return f.out.String()
}

func (f *cliFixture) runErr(t *testing.T, args ...string) error {
	t.Helper()
	f.out.Reset()
	err := f.root.ExecuteArgs(args)
	require.Error(t, err)
	return err
}

func (f *cliFixture) decode(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(f.run(t, args...)), v))
}

func (f *cliFixture) createUser(t *testing.T, login string) string {
	t.Helper()
	var user users.User
	f.decode(t, &user, "create-user", "--login", login, "--email", login+"@example.com")
	return user.ID
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestCLI_MigrateIsRepeatable(t *testing.T) {
	f := newCLIFixture(t)

	assert.Contains(t, f.run(t, "migrate"), "Migrations applied (sqlite3)")
	assert.Contains(t, f.run(t, "seed"), "Catalog seeded")
}

func TestCLI_ProjectAndBillFlow(t *testing.T) {
	f := newCLIFixture(t)

	f.createUser(t, "alice")
	bobID := f.createUser(t, "bob")
	f.createUser(t, "carol")

	var project projects.Project
	f.decode(t, &project, "create-project", "--as", "alice", "--name", "Café Crew")
	assert.Equal(t, "Caf Crew", project.Key)
	assert.Equal(t, "Café Crew", project.Name)

	err := f.runErr(t, "add-members", "--as", "carol", "--project", id(project.ID), "--user-ids", bobID)
	assert.ErrorIs(t, err, projects.ErrForbidden)

	var added []projects.ProjectMember
	f.decode(t, &added, "add-members", "--as", "alice", "--project", id(project.ID), "--user-ids", bobID+","+bobID)
	require.Len(t, added, 1)
	assert.Equal(t, bobID, added[0].UserID)

	err = f.runErr(t, "add-member", "--user-id", bobID, "--project", id(project.ID))
	assert.ErrorIs(t, err, projects.ErrMemberExists)

	var members []projects.ProjectMember
	f.decode(t, &members, "members", "--project", id(project.ID))
	assert.Len(t, members, 2)

	var decision rbac.Decision
	f.decode(t, &decision, "can", "--login", "bob", "--project", id(project.ID), "--capability", "add_member")
	assert.False(t, decision.Allowed)
	f.decode(t, &decision, "can", "--login", "ALICE", "--project", id(project.ID), "--capability", "add_member")
	assert.True(t, decision.Allowed)
	assert.Contains(t, decision.MatchedRoles, rbac.RoleProjectAdmin)

	var bill billing.Bill
	f.decode(t, &bill, "create-bill", "--project", id(project.ID), "--title", "Groceries")
	for _, cost := range []string{"10", "5.5", "4.5"} {
		var position billing.BillPosition
		f.decode(t, &position, "add-position", "--bill", id(bill.ID), "--title", "item", "--cost", cost)
		assert.Equal(t, bill.ID, position.BillID)
	}

	err = f.runErr(t, "close-bill", "--bill", id(bill.ID), "--as", "carol")
	assert.ErrorIs(t, err, projects.ErrForbidden)

	var closed billing.Bill
	f.decode(t, &closed, "close-bill", "--bill", id(bill.ID), "--as", "bob")
	require.NotNil(t, closed.FinalAmount)
	assert.InDelta(t, 20.0, *closed.FinalAmount, 1e-9)
	assert.NotNil(t, closed.ClosedAt)

	err = f.runErr(t, "add-position", "--bill", id(bill.ID), "--cost", "1")
	assert.ErrorIs(t, err, billing.ErrBillClosed)

	assert.Len(t, f.recorder.OfType(audit.EventTypeBillClose), 1)
	assert.Len(t, f.recorder.OfType(audit.EventTypeProjectCreate), 1)
	assert.NotEmpty(t, f.recorder.OfType(audit.EventTypeAccessDenied))
}

func TestCLI_NotFound(t *testing.T) {
	f := newCLIFixture(t)

	assert.ErrorIs(t, f.runErr(t, "close-bill", "--bill", "99"), billing.ErrBillNotFound)
	assert.ErrorIs(t, f.runErr(t, "members", "--project", "99"), projects.ErrProjectNotFound)
	assert.ErrorIs(t, f.runErr(t, "create-project", "--as", "nobody", "--name", "x"), users.ErrUserNotFound)
}

func TestCLI_CreateUserTwice(t *testing.T) {
	f := newCLIFixture(t)

	f.createUser(t, "alice")
	assert.ErrorIs(t, f.runErr(t, "create-user", "--login", "Alice"), users.ErrLoginTaken)
}

func TestNewApp_CacheModes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	testCases := []struct {
		name    string
		mutate  func(cfg *config.Config)
		check   func(t *testing.T, app *App)
		wantErr bool
	}{
		{
			name:   "none",
			mutate: func(cfg *config.Config) { cfg.Cache.Mode = config.CacheModeNone },
			check: func(t *testing.T, app *App) {
				assert.IsType(t, rbac.NoopDecisionCache{}, app.Deps.Cache)
			},
		},
		{
			name: "memory",
			check: func(t *testing.T, app *App) {
				assert.IsType(t, &rbac.MemoryDecisionCache{}, app.Deps.Cache)
			},
		},
		{
			name: "redis",
			mutate: func(cfg *config.Config) {
				cfg.Cache.Mode = config.CacheModeRedis
				cfg.Redis.URL = "redis://" + mr.Addr()
			},
			check: func(t *testing.T, app *App) {
				assert.IsType(t, &rbac.RedisDecisionCache{}, app.Deps.Cache)
				assert.NotNil(t, app.Redis)
			},
		},
		{
			name:    "redis without url",
			mutate:  func(cfg *config.Config) { cfg.Cache.Mode = config.CacheModeRedis },
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mutate:  func(cfg *config.Config) { cfg.Cache.Mode = "disk" },
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tc.mutate != nil {
				tc.mutate(cfg)
			}

			app, err := openTestApp(cfg)(ctx)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer app.Close()
			tc.check(t, app)
		})
	}
}

func TestNewApp_PolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capabilities:\n  close_bill:\n    roles: [PROJECT_ADMIN]\n"), 0o644))

	t.Run("static", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Policy = config.PolicyConfig{File: path, Watch: false}

		app, err := openTestApp(cfg)(context.Background())
		require.NoError(t, err)
		defer app.Close()

		assert.Nil(t, app.Watcher)
		rule, err := app.Checker.Policy().Rule(rbac.CapabilityCloseBill)
		require.NoError(t, err)
		assert.Equal(t, []rbac.RoleKind{rbac.RoleProjectAdmin}, rule.Roles)
	})

	t.Run("watched", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Policy = config.PolicyConfig{File: path, Watch: true}

		app, err := openTestApp(cfg)(context.Background())
		require.NoError(t, err)
		defer app.Close()

		require.NotNil(t, app.Watcher)
		assert.Equal(t, app.Watcher.Policy(), app.Checker.Policy())
	})

	t.Run("missing", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Policy = config.PolicyConfig{File: filepath.Join(t.TempDir(), "absent.yaml")}

		_, err := openTestApp(cfg)(context.Background())
		assert.Error(t, err)
	})
}

func TestOpsHandler(t *testing.T) {
	app, err := openTestApp(testConfig(t))(context.Background())
	require.NoError(t, err)
	defer app.Close()

	handler := opsHandler(app)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRunOps(t *testing.T) {
	app, err := openTestApp(testConfig(t))(context.Background())
	require.NoError(t, err)
	defer app.Close()

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		assert.NoError(t, runOps(ctx, app, "@every 1s"))
	})

	t.Run("rejects a bad schedule", func(t *testing.T) {
		err := runOps(context.Background(), app, "not a schedule")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid stats schedule")
	})
}

func TestOpsHandler_CapabilityFollowsWatchedPolicy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capabilities: {}\n"), 0o644))

	cfg := testConfig(t)
	cfg.Policy = config.PolicyConfig{File: path, Watch: true}
	app, err := openTestApp(cfg)(ctx)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.runMigrations(ctx))
	require.NoError(t, app.Catalog.Seed(ctx))
	alice, err := app.Users.Create(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := app.Users.Create(ctx, "bob", "bob@example.com")
	require.NoError(t, err)
	project, err := app.Projects.CreateProject(ctx, alice.ID, "Apollo")
	require.NoError(t, err)
	_, err = app.Projects.AddMember(ctx, bob.ID, project.ID, rbac.RoleBillContributor)
	require.NoError(t, err)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.Watcher.Run(watchCtx)

	handler := opsHandler(app)
	canClose := func() rbac.Decision {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/projects/"+id(project.ID)+"/can/close_bill?login=bob", nil))
		var d rbac.Decision
		if rec.Code == http.StatusOK {
			json.Unmarshal(rec.Body.Bytes(), &d)
		}
		return d
	}

	assert.True(t, canClose().Allowed)
	assert.True(t, canClose().Cached)

	require.NoError(t, os.WriteFile(path, []byte("capabilities:\n  close_bill:\n    roles: [PROJECT_ADMIN]\n"), 0o644))
	assert.Eventually(t, func() bool {
		return !canClose().Allowed
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "no matching role or permission", canClose().Reason)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authz/policy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var policy struct {
		Fingerprint string `json:"fingerprint"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &policy))
	assert.Equal(t, app.Watcher.Policy().Fingerprint(), policy.Fingerprint)
	assert.NotEqual(t, rbac.DefaultPolicy().Fingerprint(), policy.Fingerprint)
}

func TestOpsHandler_CapabilityErrors(t *testing.T) {
	app, err := openTestApp(testConfig(t))(context.Background())
	require.NoError(t, err)
	defer app.Close()

	handler := opsHandler(app)
	for _, path := range []string{
		"/authz/projects/abc/can/close_bill?login=bob",
		"/authz/projects/1/can/close_bill",
		"/authz/projects/1/can/delete_universe?login=bob",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestOpsHandler_RequestID(t *testing.T) {
	app, err := openTestApp(testConfig(t))(context.Background())
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	opsHandler(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
