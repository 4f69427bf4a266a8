package billing

import (
	"fmt"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

var (
	ErrBillNotFound = fmt.Errorf("bill: %w", storage.ErrNotFound)
	ErrBillClosed   = fmt.Errorf("bill is closed: %w", storage.ErrConflict)

	ErrBillRequired = fmt.Errorf("position requires an existing bill: %w", storage.ErrValidation)
	ErrMissingCost  = fmt.Errorf("position has no cost: %w", storage.ErrValidation)
	ErrInvalidTitle = fmt.Errorf("bill title must not be empty: %w", storage.ErrValidation)
)
