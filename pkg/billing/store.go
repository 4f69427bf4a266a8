package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Store persists bills and positions
type Store struct {
	db storage.Querier
}

// NewStore creates a bill store
func NewStore(db storage.Querier) *Store {
	return &Store{db: db}
}

// Tx returns a store bound to tx
func (s *Store) Tx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// CreateBill inserts an open bill
func (s *Store) CreateBill(ctx context.Context, projectID int64, title string, createdAt time.Time) (*Bill, error) {
	bill := &Bill{ProjectID: projectID, Title: title, CreatedAt: createdAt}
	query := `
		INSERT INTO bills (project_id, title, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, projectID, title, createdAt).Scan(&bill.ID); err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}
	return bill, nil
}

// GetBill retrieves a bill by id
func (s *Store) GetBill(ctx context.Context, id int64) (*Bill, error) {
	query := `SELECT id, project_id, title, created_at, closed_at, final_amount FROM bills WHERE id = $1`

	bill := &Bill{}
	var closedAt sql.NullTime
	var finalAmount sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&bill.ID, &bill.ProjectID, &bill.Title, &bill.CreatedAt, &closedAt, &finalAmount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrBillNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	bill.ClosedAt = storage.NullTime(closedAt)
	bill.FinalAmount = storage.NullFloat(finalAmount)
	return bill, nil
}

// ListBillsForProject lists the bills of a project in creation order
func (s *Store) ListBillsForProject(ctx context.Context, projectID int64) ([]*Bill, error) {
	query := `
		SELECT id, project_id, title, created_at, closed_at, final_amount
		FROM bills
		WHERE project_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	bills := []*Bill{}
	for rows.Next() {
		bill := &Bill{}
		var closedAt sql.NullTime
		var finalAmount sql.NullFloat64
		if err := rows.Scan(&bill.ID, &bill.ProjectID, &bill.Title, &bill.CreatedAt, &closedAt, &finalAmount); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bill.ClosedAt = storage.NullTime(closedAt)
		bill.FinalAmount = storage.NullFloat(finalAmount)
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// InsertPosition adds a position to a bill
func (s *Store) InsertPosition(ctx context.Context, billID int64, title string, cost float64) (*BillPosition, error) {
	position := &BillPosition{BillID: billID, Title: title, Cost: cost}
	query := `
		INSERT INTO bill_positions (bill_id, title, cost)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, billID, title, cost).Scan(&position.ID); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return position, nil
}

// ListPositions loads every position of a bill. A position stored without
// a cost fails the load with ErrMissingCost.
func (s *Store) ListPositions(ctx context.Context, billID int64) ([]*BillPosition, error) {
	query := `SELECT id, bill_id, title, cost FROM bill_positions WHERE bill_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	positions := []*BillPosition{}
	for rows.Next() {
		position := &BillPosition{}
		var title sql.NullString
		var cost sql.NullFloat64
		if err := rows.Scan(&position.ID, &position.BillID, &title, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if !cost.Valid {
			return nil, fmt.Errorf("%w: position %d", ErrMissingCost, position.ID)
		}
		position.Title = title.String
		position.Cost = cost.Float64
		positions = append(positions, position)
	}
	return positions, rows.Err()
}

// MarkClosed stamps a bill with its closing time and final amount
func (s *Store) MarkClosed(ctx context.Context, billID int64, closedAt time.Time, amount float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE bills SET closed_at = $1, final_amount = $2 WHERE id = $3`,
		closedAt, amount, billID,
	)
	if err != nil {
		return fmt.Errorf("failed to close bill: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrBillNotFound, billID)
	}
	return nil
}
