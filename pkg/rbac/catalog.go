package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/quartermaster/pkg/audit"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Catalog stores the role and permission grant tokens. Entries are never
// deleted.
type Catalog struct {
	db   storage.Querier
	deps Deps
}

// NewCatalog creates a catalog store
func NewCatalog(db storage.Querier, deps Deps) *Catalog {
	return &Catalog{db: db, deps: deps.WithDefaults()}
}

// Tx returns a catalog bound to tx
func (c *Catalog) Tx(tx *sql.Tx) *Catalog {
	return &Catalog{db: tx, deps: c.deps}
}

// CreateRole inserts a new role entry of kind
func (c *Catalog) CreateRole(ctx context.Context, kind RoleKind) (*MemberRole, error) {
	return createEntry(ctx, c, kind)
}

// CreatePermission inserts a new permission entry of kind
func (c *Catalog) CreatePermission(ctx context.Context, kind PermissionKind) (*MemberPermission, error) {
	return createEntry(ctx, c, kind)
}

// GetRole retrieves a role entry by id
func (c *Catalog) GetRole(ctx context.Context, id int64) (*MemberRole, error) {
	return getEntry[RoleKind](ctx, c.db, id)
}

// GetPermission retrieves a permission entry by id
func (c *Catalog) GetPermission(ctx context.Context, id int64) (*MemberPermission, error) {
	return getEntry[PermissionKind](ctx, c.db, id)
}

// FindRolesByKind returns every role entry of kind ordered by id
func (c *Catalog) FindRolesByKind(ctx context.Context, kind RoleKind) ([]*MemberRole, error) {
	return findByKind(ctx, c.db, kind)
}

// FindPermissionsByKind returns every permission entry of kind ordered by id
func (c *Catalog) FindPermissionsByKind(ctx context.Context, kind PermissionKind) ([]*MemberPermission, error) {
	return findByKind(ctx, c.db, kind)
}

// EnsureRole returns the first role entry of kind, creating one if the
// catalog has none
func (c *Catalog) EnsureRole(ctx context.Context, kind RoleKind) (*MemberRole, error) {
	return ensureEntry(ctx, c, kind)
}

// EnsurePermission returns the first permission entry of kind, creating one
// if the catalog has none
func (c *Catalog) EnsurePermission(ctx context.Context, kind PermissionKind) (*MemberPermission, error) {
	return ensureEntry(ctx, c, kind)
}

// Seed makes sure the catalog holds at least one entry per known kind
func (c *Catalog) Seed(ctx context.Context) error {
	for _, kind := range AllRoleKinds() {
		if _, err := c.EnsureRole(ctx, kind); err != nil {
			return err
		}
	}
	for _, kind := range AllPermissionKinds() {
		if _, err := c.EnsurePermission(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func createEntry[K Kind](ctx context.Context, c *Catalog, kind K) (*CatalogEntry[K], error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, string(kind))
	}
	table := tableFor[K]()

	entry := &CatalogEntry[K]{Kind: kind, CreatedAt: c.deps.Clock.Now().UTC()}
	query := fmt.Sprintf(`INSERT INTO %s (kind, created_at) VALUES ($1, $2) RETURNING id`, table.catalog)
	if err := c.db.QueryRowContext(ctx, query, string(kind), entry.CreatedAt).Scan(&entry.ID); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", table.family, err)
	}

	eventType := audit.EventTypeCatalogPermissionCreate
	if table == roleTable {
		eventType = audit.EventTypeCatalogRoleCreate
	}
	c.deps.Audit.Log(ctx, &audit.Event{
		Type:      eventType,
		CatalogID: entry.ID,
		Kind:      string(kind),
		Message:   table.family + " catalog entry created",
	})

	return entry, nil
}

func getEntry[K Kind](ctx context.Context, db storage.Querier, id int64) (*CatalogEntry[K], error) {
	table := tableFor[K]()
	query := fmt.Sprintf(`SELECT id, kind, created_at FROM %s WHERE id = $1`, table.catalog)

	var kind string
	entry := &CatalogEntry[K]{}
	err := db.QueryRowContext(ctx, query, id).Scan(&entry.ID, &kind, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrCatalogEntryNotFound, table.family, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", table.family, err)
	}
	entry.Kind = K(kind)

	return entry, nil
}

func findByKind[K Kind](ctx context.Context, db storage.Querier, kind K) ([]*CatalogEntry[K], error) {
	table := tableFor[K]()
	query := fmt.Sprintf(`SELECT id, kind, created_at FROM %s WHERE kind = $1 ORDER BY id`, table.catalog)

	rows, err := db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to find %s entries: %w", table.family, err)
	}
	defer rows.Close()

	var entries []*CatalogEntry[K]
	for rows.Next() {
		var k string
		entry := &CatalogEntry[K]{}
		if err := rows.Scan(&entry.ID, &k, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table.family, err)
		}
		entry.Kind = K(k)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func ensureEntry[K Kind](ctx context.Context, c *Catalog, kind K) (*CatalogEntry[K], error) {
	entries, err := findByKind(ctx, c.db, kind)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries[0], nil
	}
	return createEntry(ctx, c, kind)
}
