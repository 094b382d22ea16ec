// package models defines the data model for the vibewatch list service
package models

import (
	"context"
	"time"
)

// Model defines the base interface for persistent entities with identity and timestamps.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) error                      // Create inserts a new model into the database
	Get(ctx context.Context, id string) (T, error)                  // Get retrieves a model by its ID
	Update(ctx context.Context, model T) error                      // Update modifies an existing model in the database
	Delete(ctx context.Context, id string) error                    // Delete removes a model from the database by its ID
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

//go:generate mockgen -source=models.go -destination=../testing/mocks/item_store.go -package=mocks ItemStore

// ItemStore is the owner-scoped row store holding both user lists.
//
// Every method is scoped by owner. Implementations return errors wrapping shared.ErrNotFound
// and shared.ErrConflict for the missing-row and duplicate-key cases.
type ItemStore interface {
	// Insert stores a new row and fills RowID and UpdatedAt. A duplicate (owner, item key) is a conflict.
	Insert(ctx context.Context, item *SavedItem) error
	// Upsert replaces the row with the same (owner, item key), or inserts it.
	Upsert(ctx context.Context, item *SavedItem) error
	// Update rewrites key, kind and payload of an existing row identified by RowID.
	Update(ctx context.Context, item *SavedItem) error
	// Delete removes rows by id and reports how many were removed.
	Delete(ctx context.Context, owner string, rowIDs ...int64) (int64, error)
	// List returns all rows of one list, most recently updated first.
	List(ctx context.Context, owner string, kind ListKind) ([]*SavedItem, error)
	// Find returns rows of match.Kind accepted by match.
	Find(ctx context.Context, owner string, match KeyMatch) ([]*SavedItem, error)
	// Get returns the row with the exact item key.
	Get(ctx context.Context, owner, itemKey string) (*SavedItem, error)
}

// ChangeAction names the mutation behind a [ChangeEvent].
type ChangeAction string

const (
	ChangeInsert ChangeAction = "insert"
	ChangeUpsert ChangeAction = "upsert"
	ChangeDelete ChangeAction = "delete"
)

// ChangeEvent is published after a list mutation succeeds.
type ChangeEvent struct {
	Owner   string       `json:"owner"`
	List    ListKind     `json:"list"`
	Action  ChangeAction `json:"action"`
	MediaID int64        `json:"mediaId"`
	At      time.Time    `json:"at"`
}
