package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const userColumns = `id, email, password_hash, username, avatar_url, reset_hash, reset_expires_at, created_at, updated_at, deleted_at`

// UserRepository implements [models.Repository] for local [models.User] accounts.
type UserRepository struct {
	db      *sql.DB
	dialect shared.Dialect
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB, dialect shared.Dialect) *UserRepository {
	if dialect == "" {
		dialect = shared.DialectSQLite
	}
	return &UserRepository{db: db, dialect: dialect}
}

// Create inserts a new user into the database with a generated ID
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID() == "" {
		user.SetID(shared.GenerateID())
	}

	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO users (id, email, password_hash, username, avatar_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		user.ID(), user.Email(), user.PasswordHash(), user.Username(), user.AvatarURL(), user.CreatedAt().UTC(), user.UpdatedAt().UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account %s", shared.ErrConflict, user.Email())
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by e-mail address, excluding soft-deleted users
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ? AND deleted_at IS NULL`

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// Update modifies an existing user in the database
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	user.SetUpdatedAt(now)

	var resetExpires any
	if exp := user.ResetExpiresAt(); exp != nil {
		resetExpires = exp.UTC()
	}

	query := `
		UPDATE users
		SET email = ?, password_hash = ?, username = ?, avatar_url = ?, reset_hash = ?, reset_expires_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		user.Email(), user.PasswordHash(), user.Username(), user.AvatarURL(), user.ResetHash(), resetExpires, now, user.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, user.ID())
	}

	return nil
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves all users matching the given criteria, excluding soft-deleted users
func (r *UserRepository) List(ctx context.Context, criteria map[string]any) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL`

	args := []any{}

	if email, ok := criteria["email"].(string); ok && email != "" {
		query += " AND email = ?"
		args = append(args, strings.ToLower(email))
	}

	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

func scanUser(row scanner) (*models.User, error) {
	var (
		id, email, hash, username, avatar, resetHash string
		resetExpires, deletedAt                      sql.NullTime
		createdAt, updatedAt                         time.Time
	)

	if err := row.Scan(&id, &email, &hash, &username, &avatar, &resetHash, &resetExpires, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	user := models.NewUser(email, hash)
	user.SetID(id)
	user.SetUsername(username)
	user.SetAvatarURL(avatar)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	if resetExpires.Valid {
		user.SetReset(resetHash, &resetExpires.Time)
	} else {
		user.SetReset(resetHash, nil)
	}
	if deletedAt.Valid {
		user.SetDeletedAt(&deletedAt.Time)
	}

	return user, nil
}
