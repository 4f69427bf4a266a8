package projects

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func TestStore_InsertMember(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO project_members`).
			WithArgs(int64(1), "u1", now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		member, err := store.InsertMember(context.Background(), "u1", 1, now)
		require.NoError(t, err)
		assert.Equal(t, int64(7), member.ID)
		assert.Equal(t, now, member.AddedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO project_members`).
			WithArgs(int64(1), "u1", now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.InsertMember(context.Background(), "u1", 1, now)
		assert.ErrorIs(t, err, ErrMemberExists)
		assert.True(t, storage.IsConflict(err))
	})

	t.Run("database error", func(t *testing.T) {
		store, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO project_members`).
			WillReturnError(errors.New("disk full"))

		_, err := store.InsertMember(context.Background(), "u1", 1, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to add member")
		assert.False(t, storage.IsConflict(err))
	})
}

func TestStore_GetProject(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, project_key, name, created_at FROM projects WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_key", "name", "created_at"}).
			AddRow(3, "Caf", "Café", created))
	mock.ExpectQuery(`SELECT id, project_key, name, created_at FROM projects WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	project, err := store.GetProject(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Caf", project.Key)

	_, err = store.GetProject(context.Background(), 4)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindMembersForProject_ScansNullPermission(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	added := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM project_members pm WHERE pm.project_id = \$1 ORDER BY pm.id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "user_id", "additional_permission", "added_at"}).
			AddRow(1, 1, "u1", nil, added).
			AddRow(2, 1, "u2", "CLOSE_BILL", added))

	members, err := store.FindMembersForProject(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Nil(t, members[0].AdditionalPermission)
	require.NotNil(t, members[1].AdditionalPermission)
	assert.Equal(t, PermissionCloseBill, *members[1].AdditionalPermission)
}
