package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

func TestStore_MarkClosed(t *testing.T) {
	closedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing bill", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE bills SET closed_at = \$1, final_amount = \$2 WHERE id = \$3`).
			WithArgs(closedAt, 20.0, int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewStore(db).MarkClosed(context.Background(), 9, closedAt, 20.0)
		assert.ErrorIs(t, err, ErrBillNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE bills`).WillReturnError(errors.New("read-only transaction"))

		err = NewStore(db).MarkClosed(context.Background(), 9, closedAt, 20.0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close bill")
		assert.False(t, storage.IsNotFound(err))
	})
}

func TestStore_GetBill_Nulls(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, project_id, title, created_at, closed_at, final_amount FROM bills WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "title", "created_at", "closed_at", "final_amount"}).
			AddRow(1, 2, "Open", created, nil, nil))

	bill, err := NewStore(db).GetBill(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, bill.ClosedAt)
	assert.Nil(t, bill.FinalAmount)
	assert.False(t, bill.Closed())
}
