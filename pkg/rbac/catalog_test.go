package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/storage"
	"github.com/platinummonkey/quartermaster/pkg/storage/storagetest"
)

func TestCatalog_CreateAndGet(t *testing.T) {
	rec := audit.NewRecorder()
	clock := clockwork.NewFakeClockAt(storagetest.Epoch)
	catalog := NewCatalog(storagetest.NewDB(t), Deps{Clock: clock, Audit: rec})
	ctx := context.Background()

	role, err := catalog.CreateRole(ctx, RoleProjectAdmin)
	require.NoError(t, err)
	assert.NotZero(t, role.ID)
	assert.Equal(t, RoleProjectAdmin, role.Kind)

	got, err := catalog.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	assert.Equal(t, RoleProjectAdmin, got.Kind)
	assert.True(t, storagetest.Epoch.Equal(got.CreatedAt))

	perm, err := catalog.CreatePermission(ctx, PermissionCloseBill)
	require.NoError(t, err)
	gotPerm, err := catalog.GetPermission(ctx, perm.ID)
	require.NoError(t, err)
	assert.Equal(t, PermissionCloseBill, gotPerm.Kind)

	assert.Len(t, rec.OfType(audit.EventTypeCatalogRoleCreate), 1)
	assert.Len(t, rec.OfType(audit.EventTypeCatalogPermissionCreate), 1)
}

func TestCatalog_DuplicateKindsAreDistinctEntries(t *testing.T) {
	catalog := NewCatalog(storagetest.NewDB(t), Deps{})
	ctx := context.Background()

	first, err := catalog.CreateRole(ctx, RoleBillContributor)
	require.NoError(t, err)
	second, err := catalog.CreateRole(ctx, RoleBillContributor)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	found, err := catalog.FindRolesByKind(ctx, RoleBillContributor)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first.ID, found[0].ID)

	ensured, err := catalog.EnsureRole(ctx, RoleBillContributor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, ensured.ID)
}

func TestCatalog_Errors(t *testing.T) {
	catalog := NewCatalog(storagetest.NewDB(t), Deps{})
	ctx := context.Background()

	_, err := catalog.CreateRole(ctx, RoleKind("SUPERUSER"))
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.True(t, storage.IsValidation(err))

	_, err = catalog.GetPermission(ctx, 999)
	assert.ErrorIs(t, err, ErrCatalogEntryNotFound)
	assert.True(t, storage.IsNotFound(err))
}

func TestCatalog_Seed(t *testing.T) {
	catalog := NewCatalog(storagetest.NewDB(t), Deps{})
	ctx := context.Background()

	require.NoError(t, catalog.Seed(ctx))
	require.NoError(t, catalog.Seed(ctx))

	for _, kind := range AllRoleKinds() {
		found, err := catalog.FindRolesByKind(ctx, kind)
		require.NoError(t, err)
		assert.Len(t, found, 1, kind)
	}
	for _, kind := range AllPermissionKinds() {
		found, err := catalog.FindPermissionsByKind(ctx, kind)
		require.NoError(t, err)
		assert.Len(t, found, 1, kind)
	}
}

func TestCatalog_GetRole_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, kind, created_at FROM member_roles WHERE id = \\$1").
		WithArgs(int64(3)).
		WillReturnError(errors.New("connection refused"))

	_, err = NewCatalog(db, Deps{}).GetRole(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
	assert.Contains(t, err.Error(), "failed to get role")
	assert.NoError(t, mock.ExpectationsWereMet())
}
