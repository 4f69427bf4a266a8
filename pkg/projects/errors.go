package projects

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/quartermaster/pkg/rbac"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

var (
	ErrProjectNotFound = fmt.Errorf("project: %w", storage.ErrNotFound)
	ErrMemberNotFound  = rbac.ErrMemberNotFound
	ErrMemberExists    = fmt.Errorf("user is already a member of the project: %w", storage.ErrConflict)

	ErrInvalidName       = fmt.Errorf("project name must not be empty: %w", storage.ErrValidation)
	ErrInvalidPermission = fmt.Errorf("unknown project permission: %w", storage.ErrValidation)

	// ErrForbidden is returned when the acting login lacks the capability
	ErrForbidden = errors.New("forbidden")
)
