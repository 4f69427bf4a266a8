// Package users is the user directory consulted by membership and
// authorization: users are identified by a UUID string and a unique login.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/quartermaster/pkg/storage"
)

var (
	ErrUserNotFound = fmt.Errorf("user: %w", storage.ErrNotFound)
	ErrLoginTaken   = fmt.Errorf("login already in use: %w", storage.ErrConflict)
	ErrInvalidLogin = fmt.Errorf("login is required: %w", storage.ErrValidation)
)

// User is an account that can be made a project member
type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Email     string    `json:"email,omitempty"`
	Activated bool      `json:"activated"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users
type Store struct {
	db    storage.Querier
	clock clockwork.Clock
}

// NewStore creates a user store
func NewStore(db storage.Querier, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, clock: clock}
}

// Tx returns a store bound to tx
func (s *Store) Tx(tx *sql.Tx) *Store {
	return &Store{db: tx, clock: s.clock}
}

// Create inserts an activated user with a fresh UUID. Logins are stored
// lower-cased.
func (s *Store) Create(ctx context.Context, login, email string) (*User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, ErrInvalidLogin
	}

	user := &User{
		ID:        uuid.NewString(),
		Login:     login,
		Email:     email,
		Activated: true,
		CreatedAt: s.clock.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, login, email, activated, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (login) DO NOTHING
	`, user.ID, user.Login, user.Email, user.Activated, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrLoginTaken
	}

	return user, nil
}

// GetByID retrieves a user by id
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.getOne(ctx, "id = $1", id)
}

// GetByLogin retrieves a user by login
func (s *Store) GetByLogin(ctx context.Context, login string) (*User, error) {
	return s.getOne(ctx, "login = $1", strings.ToLower(login))
}

func (s *Store) getOne(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT id, login, email, activated, created_at FROM users WHERE ` + where

	user := &User{}
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Login, &email, &user.Activated, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Email = email.String

	return user, nil
}

// Exists reports whether a user with id exists
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = $1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return true, nil
}
