package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const itemColumns = `id, user_id, item_key, type, value, updated_at`

// SQLItemStore implements [models.ItemStore] over the user_items table in SQLite or Postgres.
type SQLItemStore struct {
	db      *sql.DB
	dialect shared.Dialect
}

// NewSQLItemStore creates a new [SQLItemStore] with the given database connection
func NewSQLItemStore(db *sql.DB, dialect shared.Dialect) *SQLItemStore {
	if dialect == "" {
		dialect = shared.DialectSQLite
	}
	return &SQLItemStore{db: db, dialect: dialect}
}

func (s *SQLItemStore) q(query string) string {
	return s.dialect.Rebind(query)
}

func prepareItem(item *models.SavedItem) error {
	if item.OwnerID == "" {
		return shared.ErrOwnerRequired
	}
	if item.ItemKey == "" {
		return fmt.Errorf("%w: item key is required", shared.ErrInvalidInput)
	}
	if !item.Kind.Valid() {
		return fmt.Errorf("%w: unknown list %q", shared.ErrInvalidInput, item.Kind)
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return nil
}

// Insert stores a new row. A duplicate (user_id, item_key) returns [shared.ErrConflict].
func (s *SQLItemStore) Insert(ctx context.Context, item *models.SavedItem) error {
	if err := prepareItem(item); err != nil {
		return err
	}

	query := `
		INSERT INTO user_items (user_id, item_key, type, value, updated_at) VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, s.q(query), item.OwnerID, item.ItemKey, string(item.Kind), item.Value, item.UpdatedAt).Scan(&item.RowID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: item %s", shared.ErrConflict, item.ItemKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	return nil
}

// Upsert inserts the row or replaces the one holding the same (user_id, item_key).
func (s *SQLItemStore) Upsert(ctx context.Context, item *models.SavedItem) error {
	if err := prepareItem(item); err != nil {
		return err
	}

	query := `
		INSERT INTO user_items (user_id, item_key, type, value, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_key) DO UPDATE
		SET type = excluded.type, value = excluded.value, updated_at = excluded.updated_at
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, s.q(query), item.OwnerID, item.ItemKey, string(item.Kind), item.Value, item.UpdatedAt).Scan(&item.RowID)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	return nil
}

// Update rewrites the key, list and payload of the row identified by item.RowID.
//
// UpdatedAt is written as given so rewriting keys does not reorder a list.
func (s *SQLItemStore) Update(ctx context.Context, item *models.SavedItem) error {
	if err := prepareItem(item); err != nil {
		return err
	}

	query := `
		UPDATE user_items
		SET item_key = ?, type = ?, value = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	result, err := s.db.ExecContext(ctx, s.q(query), item.ItemKey, string(item.Kind), item.Value, item.UpdatedAt, item.RowID, item.OwnerID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: item %s", shared.ErrConflict, item.ItemKey)
	}
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: item row %d", shared.ErrNotFound, item.RowID)
	}

	return nil
}

// Delete removes the owner's rows with the given ids.
func (s *SQLItemStore) Delete(ctx context.Context, owner string, rowIDs ...int64) (int64, error) {
	if owner == "" {
		return 0, shared.ErrOwnerRequired
	}
	if len(rowIDs) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(rowIDs)+1)
	args = append(args, owner)
	for _, id := range rowIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`DELETE FROM user_items WHERE user_id = ? AND id IN (%s)`, placeholders(len(rowIDs)))

	result, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// List returns the owner's rows of one list, most recently updated first.
func (s *SQLItemStore) List(ctx context.Context, owner string, kind models.ListKind) ([]*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}

	query := `SELECT ` + itemColumns + `
		FROM user_items
		WHERE user_id = ? AND type = ?
		ORDER BY updated_at DESC, id DESC
	`

	return s.query(ctx, query, owner, string(kind))
}

// Find narrows candidates by key and payload pattern in SQL, then keeps the rows match accepts.
func (s *SQLItemStore) Find(ctx context.Context, owner string, match models.KeyMatch) ([]*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}

	patterns := match.PayloadPatterns()
	args := []any{owner, string(match.Kind)}
	for _, k := range match.Keys {
		args = append(args, k)
	}
	likes := ""
	for _, p := range patterns {
		likes += " OR value LIKE ?"
		args = append(args, p)
	}

	query := fmt.Sprintf(`SELECT %s
		FROM user_items
		WHERE user_id = ? AND type = ? AND (item_key IN (%s)%s)
		ORDER BY updated_at DESC, id DESC
	`, itemColumns, placeholders(len(match.Keys)), likes)

	candidates, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	items := make([]*models.SavedItem, 0, len(candidates))
	for _, item := range candidates {
		if match.Matches(item) {
			items = append(items, item)
		}
	}
	return items, nil
}

// Get returns the row with the exact key, or [shared.ErrNotFound].
func (s *SQLItemStore) Get(ctx context.Context, owner, itemKey string) (*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}

	query := `SELECT ` + itemColumns + `
		FROM user_items
		WHERE user_id = ? AND item_key = ?
	`

	item, err := scanItem(s.db.QueryRowContext(ctx, s.q(query), owner, itemKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s", shared.ErrNotFound, itemKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	return item, nil
}

// Owners returns every owner with at least one row.
func (s *SQLItemStore) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM user_items ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return owners, nil
}

func (s *SQLItemStore) query(ctx context.Context, query string, args ...any) ([]*models.SavedItem, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.SavedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func scanItem(row scanner) (*models.SavedItem, error) {
	var (
		item models.SavedItem
		kind string
	)
	if err := row.Scan(&item.RowID, &item.OwnerID, &item.ItemKey, &kind, &item.Value, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Kind = models.ListKind(kind)
	return &item, nil
}
