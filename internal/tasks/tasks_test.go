package tasks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/mock/gomock"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/shared"
	tu "github.com/desertthunder/vibewatch/internal/testing"
	"github.com/desertthunder/vibewatch/internal/testing/mocks"
)

func quietLogger() *log.Logger {
	return shared.NewLogger(&bytes.Buffer{})
}

func setupStore(t *testing.T) *repositories.SQLItemStore {
	t.Helper()
	return repositories.NewSQLItemStore(tu.NewTestDB(t), shared.DialectSQLite)
}

func setupLists(t *testing.T) *repositories.ListRepository {
	t.Helper()
	return repositories.NewListRepository(setupStore(t), repositories.ListRepositoryOpts{Logger: quietLogger()})
}

func TestItemGuard(t *testing.T) {
	t.Run("second acquire is busy", func(t *testing.T) {
		g := NewItemGuard()
		release, err := g.Acquire("u1", models.ToWatch, models.MediaMovie, 550)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !g.Busy("u1", models.ToWatch, models.MediaMovie, 550) {
			t.Error("expected item to be busy")
		}

		if _, err := g.Acquire("u1", models.ToWatch, models.MediaMovie, 550); !errors.Is(err, shared.ErrItemBusy) {
			t.Errorf("expected ErrItemBusy, got %v", err)
		}

		release()
		release()
		if g.Busy("u1", models.ToWatch, models.MediaMovie, 550) {
			t.Error("expected item to be released")
		}
		if _, err := g.Acquire("u1", models.ToWatch, models.MediaMovie, 550); err != nil {
			t.Errorf("expected acquire after release to succeed, got %v", err)
		}
	})

	t.Run("keys are scoped", func(t *testing.T) {
		g := NewItemGuard()
		if _, err := g.Acquire("u1", models.ToWatch, models.MediaMovie, 550); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, tc := range []struct {
			name  string
			owner string
			kind  models.ListKind
			mt    models.MediaType
		}{
			{"other owner", "u2", models.ToWatch, models.MediaMovie},
			{"other list", "u1", models.Watched, models.MediaMovie},
			{"other type", "u1", models.ToWatch, models.MediaTV},
		} {
			if _, err := g.Acquire(tc.owner, tc.kind, tc.mt, 550); err != nil {
				t.Errorf("%s: expected independent guard, got %v", tc.name, err)
			}
		}
	})

	t.Run("unknown type counts as movie", func(t *testing.T) {
		g := NewItemGuard()
		if _, err := g.Acquire("u1", models.Watched, models.MediaUnknown, 13); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !g.Busy("u1", models.Watched, models.MediaMovie, 13) {
			t.Error("expected unknown type to share the movie key")
		}
	})

	t.Run("concurrent acquire admits one", func(t *testing.T) {
		g := NewItemGuard()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := g.Acquire("u1", models.ToWatch, models.MediaMovie, 1); err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if granted != 1 {
			t.Errorf("expected exactly one holder, got %d", granted)
		}
	})
}

func TestReconciler(t *testing.T) {
	ctx := context.Background()

	t.Run("flags saved titles in a batch", func(t *testing.T) {
		lists := setupLists(t)
		var batch []models.Media
		for i := int64(1); i <= 10; i++ {
			batch = append(batch, tu.Movie(i, "Movie", "2020-01-01"))
		}

		if _, err := lists.Add(ctx, "u1", models.ToWatch, batch[1]); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if _, err := lists.Add(ctx, "u1", models.ToWatch, batch[4]); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		rated := models.NewPayload(batch[7], time.Now())
		rating := 7.5
		rated.UserRating = &rating
		if _, err := lists.Replace(ctx, "u1", models.Watched, rated); err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		got, err := NewReconciler(lists, quietLogger()).Reconcile(ctx, "u1", batch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("expected 10 annotated items, got %d", len(got))
		}

		for i, item := range got {
			wantSaved := i == 1 || i == 4
			wantWatched := i == 7
			if item.InWatchlist != wantSaved || item.Watched != wantWatched {
				t.Errorf("item %d: got watchlist=%v watched=%v", item.ID, item.InWatchlist, item.Watched)
			}
		}
		if got[7].UserRating == nil || *got[7].UserRating != 7.5 {
			t.Errorf("expected user rating 7.5, got %v", got[7].UserRating)
		}
	})

	t.Run("movie and show sharing an id are distinct", func(t *testing.T) {
		lists := setupLists(t)
		movie := tu.Movie(100, "Solaris", "1972-03-20")
		show := tu.Show(100, "Solaris", "2002-11-27")
		if _, err := lists.Add(ctx, "u1", models.ToWatch, movie); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		got, err := NewReconciler(lists, quietLogger()).Reconcile(ctx, "u1", []models.Media{movie, show})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got[0].InWatchlist {
			t.Error("expected movie to be flagged")
		}
		if got[1].InWatchlist {
			t.Error("expected show not to be flagged")
		}
	})

	t.Run("anonymous viewer sees nothing flagged", func(t *testing.T) {
		got, err := NewReconciler(setupLists(t), quietLogger()).Reconcile(ctx, "", []models.Media{tu.Movie(1, "A", "2001-01-01")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[0].InWatchlist || got[0].Watched {
			t.Errorf("expected no flags, got %+v", got[0])
		}
	})

	t.Run("failed list degrades to partial membership", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockItemStore(ctrl)

		value, _ := models.NewPayload(tu.Movie(9, "Nine", "2009-09-09"), time.Now()).Encode()
		store.EXPECT().List(gomock.Any(), "u1", models.ToWatch).Return(nil, errors.New("connection reset"))
		store.EXPECT().List(gomock.Any(), "u1", models.Watched).Return([]*models.SavedItem{
			{RowID: 1, OwnerID: "u1", Kind: models.Watched, ItemKey: "watched_9", Value: value},
		}, nil)

		lists := repositories.NewListRepository(store, repositories.ListRepositoryOpts{Logger: quietLogger()})
		got, err := NewReconciler(lists, quietLogger()).Reconcile(ctx, "u1", []models.Media{tu.Movie(9, "Nine", "2009-09-09")})
		if err == nil {
			t.Fatal("expected the list error to be reported")
		}
		if !got[0].Watched {
			t.Error("expected the watched list to still be applied")
		}
		if got[0].InWatchlist {
			t.Error("expected failed list to be treated as empty")
		}
	})

	t.Run("failed list does not cancel the other query", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockItemStore(ctrl)

		value, _ := models.NewPayload(tu.Movie(9, "Nine", "2009-09-09"), time.Now()).Encode()
		failed := make(chan struct{})
		store.EXPECT().List(gomock.Any(), "u1", models.ToWatch).DoAndReturn(
			func(context.Context, string, models.ListKind) ([]*models.SavedItem, error) {
				defer close(failed)
				return nil, errors.New("connection reset")
			})
		store.EXPECT().List(gomock.Any(), "u1", models.Watched).DoAndReturn(
			func(ctx context.Context, _ string, _ models.ListKind) ([]*models.SavedItem, error) {
				<-failed
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(50 * time.Millisecond):
				}
				return []*models.SavedItem{
					{RowID: 1, OwnerID: "u1", Kind: models.Watched, ItemKey: "watched_9", Value: value},
				}, nil
			})

		lists := repositories.NewListRepository(store, repositories.ListRepositoryOpts{Logger: quietLogger()})
		got, err := NewReconciler(lists, quietLogger()).Reconcile(ctx, "u1", []models.Media{tu.Movie(9, "Nine", "2009-09-09")})
		if err == nil || errors.Is(err, context.Canceled) {
			t.Fatalf("expected the to-watch error, got %v", err)
		}
		if !got[0].Watched {
			t.Error("expected the watched list to load after the to-watch failure")
		}
	})
}

func TestMembership(t *testing.T) {
	m := NewMembership(
		[]models.ListEntry{{ID: 1}, {ID: 2, MediaType: models.MediaTV}},
		[]models.ListEntry{{ID: 3, MediaType: models.MediaMovie}},
	)

	tests := []struct {
		name  string
		kind  models.ListKind
		media models.Media
		want  bool
	}{
		{"untyped entry counts as movie", models.ToWatch, models.Media{ID: 1, MediaType: models.MediaMovie}, true},
		{"tv entry", models.ToWatch, models.Media{ID: 2, MediaType: models.MediaTV}, true},
		{"tv entry does not match movie", models.ToWatch, models.Media{ID: 2, MediaType: models.MediaMovie}, false},
		{"watched", models.Watched, models.Media{ID: 3}, true},
		{"absent", models.Watched, models.Media{ID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Has(tt.kind, tt.media); got != tt.want {
				t.Errorf("Has() = %v, want %v", got, tt.want)
			}
		})
	}
}
