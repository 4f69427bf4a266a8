package rbac

import (
	"fmt"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

var (
	ErrCatalogEntryNotFound = fmt.Errorf("catalog entry: %w", storage.ErrNotFound)
	ErrAssignmentNotFound   = fmt.Errorf("assignment: %w", storage.ErrNotFound)
	ErrMemberNotFound       = fmt.Errorf("project member: %w", storage.ErrNotFound)

	ErrInvalidKind       = fmt.Errorf("unknown grant kind: %w", storage.ErrValidation)
	ErrUnknownCapability = fmt.Errorf("unknown capability: %w", storage.ErrValidation)
	ErrInvalidPolicy     = fmt.Errorf("invalid policy: %w", storage.ErrValidation)
)
