package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/projects"
	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Service runs the bill commands
type Service struct {
	db       *sql.DB
	store    *Store
	projects *projects.Store
	checker  *rbac.Checker
	deps     rbac.Deps
}

// NewService creates a billing service. A nil checker uses the default
// policy.
func NewService(db *sql.DB, checker *rbac.Checker, deps rbac.Deps) *Service {
	deps = deps.WithDefaults()
	if checker == nil {
		checker = rbac.NewChecker(db, nil, deps)
	}
	return &Service{
		db:       db,
		store:    NewStore(db),
		projects: projects.NewStore(db),
		checker:  checker,
		deps:     deps,
	}
}

// CreateBill opens a new bill for projectID
func (s *Service) CreateBill(ctx context.Context, projectID int64, title string) (*Bill, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	var bill *Bill
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.projects.Tx(tx).GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		bill, err = s.store.Tx(tx).CreateBill(ctx, projectID, title, s.deps.Clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// AddPosition adds a position to an open bill. A bill id that does not
// resolve is rejected before any write.
func (s *Service) AddPosition(ctx context.Context, billID int64, title string, cost float64) (*BillPosition, error) {
	var position *BillPosition
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.Tx(tx)
		bill, err := store.GetBill(ctx, billID)
		if errors.Is(err, ErrBillNotFound) {
			return fmt.Errorf("%w: bill %d", ErrBillRequired, billID)
		}
		if err != nil {
			return err
		}
		if bill.Closed() {
			return fmt.Errorf("%w: %d", ErrBillClosed, billID)
		}

		position, err = store.InsertPosition(ctx, billID, title, cost)
		return err
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// CloseBill sums the bill's positions and records the total and the
// closing time. Closing an already closed bill recomputes both.
func (s *Service) CloseBill(ctx context.Context, billID int64) (_ *Bill, err error) {
	ctx, span := observability.StartSpan(ctx, "billing.CloseBill", attribute.Int64("bill_id", billID))
	start := s.deps.Clock.Now()
	defer func() {
		s.deps.Metrics.RecordCommand("close_bill", err, s.deps.Clock.Since(start))
		observability.EndSpan(span, err)
	}()

	var bill *Bill
	var positions []*BillPosition
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		store := s.store.Tx(tx)

		var err error
		bill, err = store.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		positions, err = store.ListPositions(ctx, billID)
		if err != nil {
			return err
		}

		total := Total(positions)
		closedAt := s.deps.Clock.Now().UTC()
		if err := store.MarkClosed(ctx, billID, closedAt, total); err != nil {
			return err
		}
		bill.ClosedAt = &closedAt
		bill.FinalAmount = &total
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Audit.Log(ctx, &audit.Event{
		Type:      audit.EventTypeBillClose,
		ProjectID: bill.ProjectID,
		Message:   "bill closed",
		Metadata: map[string]interface{}{
			"bill_id":      bill.ID,
			"positions":    len(positions),
			"final_amount": *bill.FinalAmount,
		},
	})
	s.deps.Logger.WithFields(map[string]interface{}{
		"bill_id":      bill.ID,
		"final_amount": *bill.FinalAmount,
	}).Info("Bill closed")

	return bill, nil
}

// CloseBillAndUpdateProjectAndMemberAccountsBalances closes the bill
func (s *Service) CloseBillAndUpdateProjectAndMemberAccountsBalances(ctx context.Context, billID int64) (*Bill, error) {
	return s.CloseBill(ctx, billID)
}

// CloseBillForLogin closes the bill if login holds the close_bill
// capability in the bill's project
func (s *Service) CloseBillForLogin(ctx context.Context, login string, billID int64) (*Bill, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}

	decision, err := s.checker.Can(ctx, login, bill.ProjectID, rbac.CapabilityCloseBill)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s may not close bill %d", projects.ErrForbidden, login, billID)
	}

	return s.CloseBill(ctx, billID)
}

// GetBill retrieves a bill by id
func (s *Service) GetBill(ctx context.Context, id int64) (*Bill, error) {
	return s.store.GetBill(ctx, id)
}

// ListPositions lists the positions of a bill
func (s *Service) ListPositions(ctx context.Context, billID int64) ([]*BillPosition, error) {
	if _, err := s.store.GetBill(ctx, billID); err != nil {
		return nil, err
	}
	return s.store.ListPositions(ctx, billID)
}

// ListBillsForProject lists the bills of a project
func (s *Service) ListBillsForProject(ctx context.Context, projectID int64) ([]*Bill, error) {
	return s.store.ListBillsForProject(ctx, projectID)
}
