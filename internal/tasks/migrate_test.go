package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/shared"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seedLegacyRows writes rows the way older clients did:
//
//	movie_550      typed payload       (oldest)
//	watchlist_550  payload without a type
//	to-watch_13    typed payload
//	watched_680    typed payload, already in the mobile shape
func seedLegacyRows(t *testing.T, store *repositories.SQLItemStore) {
	t.Helper()
	rows := []*models.SavedItem{
		{OwnerID: "u1", Kind: models.ToWatch, ItemKey: "movie_550", Value: `{"id":550,"title":"Fight Club","media_type":"movie","release_date":"1999-10-15"}`, UpdatedAt: epoch},
		{OwnerID: "u1", Kind: models.ToWatch, ItemKey: "watchlist_550", Value: `{"id":550,"title":"Fight Club","release_date":"1999-10-15"}`, UpdatedAt: epoch.Add(time.Hour)},
		{OwnerID: "u1", Kind: models.ToWatch, ItemKey: "to-watch_13", Value: `{"id":13,"title":"Forrest Gump","media_type":"movie","release_date":"1994-07-06"}`, UpdatedAt: epoch.Add(2 * time.Hour)},
		{OwnerID: "u1", Kind: models.Watched, ItemKey: "watched_680", Value: `{"id":680,"title":"Pulp Fiction","media_type":"movie","release_date":"1994-09-10"}`, UpdatedAt: epoch},
	}
	for _, row := range rows {
		require.NoError(t, store.Insert(context.Background(), row))
	}
}

func keys(t *testing.T, store *repositories.SQLItemStore, kind models.ListKind) []string {
	t.Helper()
	rows, err := store.List(context.Background(), "u1", kind)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ItemKey
	}
	return out
}

func TestKeyMigrator(t *testing.T) {
	ctx := context.Background()

	t.Run("mobile scheme", func(t *testing.T) {
		store := setupStore(t)
		seedLegacyRows(t, store)

		progress := make(chan ProgressUpdate, 32)
		res, err := NewKeyMigrator(store, models.SchemeMobile, quietLogger()).Run(ctx, "u1", progress, false)
		require.NoError(t, err)

		assert.Equal(t, 4, res.Scanned)
		assert.Equal(t, 1, res.Collapsed)
		assert.Equal(t, 1, res.Rewritten)
		assert.Equal(t, 1, res.Typed)
		assert.Zero(t, res.Conflicts)
		assert.Len(t, res.Changes, 3)

		assert.Equal(t, []string{"watchlist_13", "watchlist_550"}, keys(t, store, models.ToWatch))
		assert.Equal(t, []string{"watched_680"}, keys(t, store, models.Watched))

		kept, err := store.Get(ctx, "u1", "watchlist_550")
		require.NoError(t, err)
		p, err := kept.Payload()
		require.NoError(t, err)
		assert.Equal(t, models.MediaMovie, p.MediaType)
		assert.True(t, kept.UpdatedAt.Equal(epoch.Add(time.Hour)), "rewrite must not reorder the list")

		assert.NotEmpty(t, progress)
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		store := setupStore(t)
		seedLegacyRows(t, store)

		res, err := NewKeyMigrator(store, models.SchemeMobile, quietLogger()).Run(ctx, "u1", nil, true)
		require.NoError(t, err)
		assert.True(t, res.DryRun)
		assert.Equal(t, 1, res.Collapsed)
		assert.Equal(t, 1, res.Rewritten)

		assert.Equal(t, []string{"to-watch_13", "watchlist_550", "movie_550"}, keys(t, store, models.ToWatch))
	})

	t.Run("canonical scheme", func(t *testing.T) {
		store := setupStore(t)
		seedLegacyRows(t, store)

		res, err := NewKeyMigrator(store, models.SchemeCanonical, quietLogger()).Run(ctx, "u1", nil, false)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Rewritten)

		assert.Equal(t, []string{"watchlist:movie:13", "watchlist:movie:550"}, keys(t, store, models.ToWatch))
		assert.Equal(t, []string{"watched:movie:680"}, keys(t, store, models.Watched))

		lists := repositories.NewListRepository(store, repositories.ListRepositoryOpts{Scheme: models.SchemeCanonical, Logger: quietLogger()})
		ok, err := lists.Contains(ctx, "u1", models.Watched, 680, models.MediaMovie)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		store := setupStore(t)
		seedLegacyRows(t, store)
		m := NewKeyMigrator(store, models.SchemeMobile, quietLogger())

		_, err := m.Run(ctx, "u1", nil, false)
		require.NoError(t, err)
		res, err := m.Run(ctx, "u1", nil, false)
		require.NoError(t, err)
		assert.Empty(t, res.Changes)
	})

	t.Run("unreadable rows are skipped", func(t *testing.T) {
		store := setupStore(t)
		require.NoError(t, store.Insert(ctx, &models.SavedItem{OwnerID: "u1", Kind: models.ToWatch, ItemKey: "garbage", Value: "not json"}))

		res, err := NewKeyMigrator(store, models.SchemeMobile, quietLogger()).Run(ctx, "u1", nil, false)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Unreadable)
		assert.Equal(t, []string{"garbage"}, keys(t, store, models.ToWatch))
	})

	t.Run("owner is required", func(t *testing.T) {
		_, err := NewKeyMigrator(setupStore(t), "", quietLogger()).Run(ctx, "", nil, false)
		assert.ErrorIs(t, err, shared.ErrOwnerRequired)
	})
}
