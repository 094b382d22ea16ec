package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// ListRepositoryOpts configures a [ListRepository].
type ListRepositoryOpts struct {
	Feed   *Feed
	Scheme models.KeyScheme
	Logger *log.Logger
	Clock  func() time.Time
}

// ListRepository adds, removes and queries the to-watch and watched lists of an owner.
//
// Every method logs store failures and returns them as [*models.ListError]; callers degrade to
// false or empty results. Successful mutations are published on the [Feed].
type ListRepository struct {
	store  models.ItemStore
	feed   *Feed
	scheme models.KeyScheme
	logger *log.Logger
	now    func() time.Time
}

// NewListRepository creates a new [ListRepository] over store.
func NewListRepository(store models.ItemStore, opts ListRepositoryOpts) *ListRepository {
	if opts.Scheme == "" {
		opts.Scheme = models.SchemeMobile
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ListRepository{
		store:  store,
		feed:   opts.Feed,
		scheme: opts.Scheme,
		logger: shared.WithLogger(opts.Logger, "component", "lists"),
		now:    opts.Clock,
	}
}

// Feed returns the change feed mutations are published on, or nil.
func (r *ListRepository) Feed() *Feed {
	return r.feed
}

// Scheme returns the key scheme used for new rows.
func (r *ListRepository) Scheme() models.KeyScheme {
	return r.scheme
}

func (r *ListRepository) fail(op, owner string, kind models.ListKind, mediaID int64, err error) error {
	r.logger.Error("list operation failed", "op", op, "owner", owner, "list", kind.Label(), "media_id", mediaID, "error", err)
	return &models.ListError{Op: op, List: kind, MediaID: mediaID, Err: err}
}

func (r *ListRepository) publish(owner string, kind models.ListKind, action models.ChangeAction, mediaID int64) {
	r.feed.Publish(models.ChangeEvent{Owner: owner, List: kind, Action: action, MediaID: mediaID, At: r.now()})
}

func validate(owner string, kind models.ListKind) error {
	if owner == "" {
		return shared.ErrOwnerRequired
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown list %q", shared.ErrInvalidArgument, kind)
	}
	return nil
}

// Add snapshots media into a new row of the owner's list.
//
// The row is keyed with the configured scheme. A row already holding that key is a conflict.
func (r *ListRepository) Add(ctx context.Context, owner string, kind models.ListKind, media models.Media) (*models.SavedItem, error) {
	if err := validate(owner, kind); err != nil {
		return nil, r.fail("add", owner, kind, media.ID, err)
	}
	if media.ID <= 0 {
		return nil, r.fail("add", owner, kind, media.ID, fmt.Errorf("%w: media id must be positive", shared.ErrInvalidInput))
	}

	now := r.now()
	value, err := models.NewPayload(media, now).Encode()
	if err != nil {
		return nil, r.fail("add", owner, kind, media.ID, err)
	}

	item := &models.SavedItem{
		OwnerID:   owner,
		Kind:      kind,
		ItemKey:   r.scheme.Encode(kind, media.Type(), media.ID),
		Value:     value,
		UpdatedAt: now,
	}
	if err := r.store.Insert(ctx, item); err != nil {
		return nil, r.fail("add", owner, kind, media.ID, err)
	}

	r.logger.Debug("added item", "owner", owner, "list", kind.Label(), "media_id", media.ID, "key", item.ItemKey)
	r.publish(owner, kind, models.ChangeInsert, media.ID)
	return item, nil
}

// Replace writes payload into the owner's list, replacing the row with the same key.
//
// Other rows of the same list that refer to the item under older key shapes are removed,
// so the list keeps one row per item.
func (r *ListRepository) Replace(ctx context.Context, owner string, kind models.ListKind, payload *models.Payload) (*models.SavedItem, error) {
	if err := validate(owner, kind); err != nil {
		return nil, r.fail("replace", owner, kind, payload.ID, err)
	}
	if payload.ID <= 0 {
		return nil, r.fail("replace", owner, kind, payload.ID, fmt.Errorf("%w: media id must be positive", shared.ErrInvalidInput))
	}

	value, err := payload.Encode()
	if err != nil {
		return nil, r.fail("replace", owner, kind, payload.ID, err)
	}

	item := &models.SavedItem{
		OwnerID:   owner,
		Kind:      kind,
		ItemKey:   r.scheme.Encode(kind, payload.Type(), payload.ID),
		Value:     value,
		UpdatedAt: r.now(),
	}
	if err := r.store.Upsert(ctx, item); err != nil {
		return nil, r.fail("replace", owner, kind, payload.ID, err)
	}

	if stale, err := r.store.Find(ctx, owner, models.MatchFor(kind, payload.ID, payload.Type())); err != nil {
		r.logger.Warn("failed to look up duplicate rows", "owner", owner, "list", kind.Label(), "media_id", payload.ID, "error", err)
	} else {
		var ids []int64
		for _, s := range stale {
			if s.RowID != item.RowID {
				ids = append(ids, s.RowID)
			}
		}
		if len(ids) > 0 {
			if _, err := r.store.Delete(ctx, owner, ids...); err != nil {
				r.logger.Warn("failed to remove duplicate rows", "owner", owner, "list", kind.Label(), "media_id", payload.ID, "rows", ids, "error", err)
			}
		}
	}

	r.publish(owner, kind, models.ChangeUpsert, payload.ID)
	return item, nil
}

// Remove deletes an item from the owner's list.
//
// A known RowID is deleted directly. Otherwise every row matching the media id under any key
// shape is deleted. Removing an absent item reports false without an error.
func (r *ListRepository) Remove(ctx context.Context, owner string, kind models.ListKind, ref models.ItemRef) (bool, error) {
	if err := validate(owner, kind); err != nil {
		return false, r.fail("remove", owner, kind, ref.MediaID, err)
	}

	var ids []int64
	if ref.RowID > 0 {
		ids = []int64{ref.RowID}
	} else {
		if ref.MediaID <= 0 {
			return false, r.fail("remove", owner, kind, ref.MediaID, fmt.Errorf("%w: media id or row id is required", shared.ErrInvalidInput))
		}
		rows, err := r.store.Find(ctx, owner, models.MatchFor(kind, ref.MediaID, ref.MediaType))
		if err != nil {
			return false, r.fail("remove", owner, kind, ref.MediaID, err)
		}
		for _, row := range rows {
			ids = append(ids, row.RowID)
		}
	}

	if len(ids) == 0 {
		return false, nil
	}

	n, err := r.store.Delete(ctx, owner, ids...)
	if err != nil {
		return false, r.fail("remove", owner, kind, ref.MediaID, err)
	}
	if n == 0 {
		return false, nil
	}

	r.logger.Debug("removed item", "owner", owner, "list", kind.Label(), "media_id", ref.MediaID, "rows", n)
	r.publish(owner, kind, models.ChangeDelete, ref.MediaID)
	return true, nil
}

// Query returns the owner's list as view models, most recently updated first.
//
// An anonymous owner has empty lists. Rows whose payload does not decode are skipped and logged.
func (r *ListRepository) Query(ctx context.Context, owner string, kind models.ListKind) ([]models.ListEntry, error) {
	if owner == "" {
		return []models.ListEntry{}, nil
	}
	if err := validate(owner, kind); err != nil {
		return []models.ListEntry{}, r.fail("query", owner, kind, 0, err)
	}

	rows, err := r.store.List(ctx, owner, kind)
	if err != nil {
		return []models.ListEntry{}, r.fail("query", owner, kind, 0, err)
	}

	entries := make([]models.ListEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := models.NewListEntry(row)
		if err != nil {
			r.logger.Warn("skipping unreadable row", "owner", owner, "list", kind.Label(), "row_id", row.RowID, "key", row.ItemKey, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetWatched returns the payload of a watched item, or nil when the item is not on the list.
func (r *ListRepository) GetWatched(ctx context.Context, owner string, mediaID int64) (*models.Payload, error) {
	if owner == "" {
		return nil, nil
	}

	item, err := r.store.Get(ctx, owner, models.SchemeMobile.Encode(models.Watched, models.MediaUnknown, mediaID))
	if errors.Is(err, shared.ErrNotFound) {
		rows, ferr := r.store.Find(ctx, owner, models.MatchFor(models.Watched, mediaID, models.MediaUnknown))
		if ferr != nil {
			return nil, r.fail("get", owner, models.Watched, mediaID, ferr)
		}
		if len(rows) == 0 {
			return nil, nil
		}
		item, err = rows[0], nil
	}
	if err != nil {
		return nil, r.fail("get", owner, models.Watched, mediaID, err)
	}

	payload, err := item.Payload()
	if err != nil {
		return nil, r.fail("get", owner, models.Watched, mediaID, err)
	}
	return payload, nil
}

// Contains reports whether the item is on the owner's list.
func (r *ListRepository) Contains(ctx context.Context, owner string, kind models.ListKind, mediaID int64, mt models.MediaType) (bool, error) {
	if owner == "" {
		return false, nil
	}
	rows, err := r.store.Find(ctx, owner, models.MatchFor(kind, mediaID, mt))
	if err != nil {
		return false, r.fail("contains", owner, kind, mediaID, err)
	}
	return len(rows) > 0, nil
}

// Count returns the number of rows on the owner's list.
func (r *ListRepository) Count(ctx context.Context, owner string, kind models.ListKind) (int, error) {
	if owner == "" {
		return 0, nil
	}
	rows, err := r.store.List(ctx, owner, kind)
	if err != nil {
		return 0, r.fail("count", owner, kind, 0, err)
	}
	return len(rows), nil
}

// Clear removes every row of both lists for owner.
func (r *ListRepository) Clear(ctx context.Context, owner string) (int64, error) {
	var total int64
	for _, kind := range models.ListKinds {
		if err := validate(owner, kind); err != nil {
			return total, r.fail("clear", owner, kind, 0, err)
		}
		rows, err := r.store.List(ctx, owner, kind)
		if err != nil {
			return total, r.fail("clear", owner, kind, 0, err)
		}
		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.RowID)
		}
		n, err := r.store.Delete(ctx, owner, ids...)
		if err != nil {
			return total, r.fail("clear", owner, kind, 0, err)
		}
		total += n
		if n > 0 {
			r.publish(owner, kind, models.ChangeDelete, 0)
		}
	}
	return total, nil
}
