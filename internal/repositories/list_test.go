package repositories

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// tickClock returns a clock advancing one second per call.
func tickClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func setupListRepo(t *testing.T) (*ListRepository, *SQLItemStore, *Feed) {
	t.Helper()
	store := NewSQLItemStore(setupTestDB(t), shared.DialectSQLite)
	feed := NewFeed(8)
	repo := NewListRepository(store, ListRepositoryOpts{
		Feed:   feed,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Clock:  tickClock(),
	})
	return repo, store, feed
}

var inception = models.Media{ID: 27205, Title: "Inception", PosterPath: "/inc.jpg", ReleaseDate: "2010-07-16", VoteAverage: 8.4, MediaType: models.MediaMovie}

func TestListRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Add then Query", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)

		item, err := repo.Add(ctx, "u1", models.ToWatch, inception)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if item.ItemKey != "watchlist_27205" {
			t.Errorf("expected list-qualified key, got %s", item.ItemKey)
		}

		entries, err := repo.Query(ctx, "u1", models.ToWatch)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected exactly one entry, got %d", len(entries))
		}
		e := entries[0]
		if e.ID != 27205 || e.MediaType != models.MediaMovie {
			t.Errorf("unexpected entry %+v", e)
		}
		if e.Title != "Inception" || e.Year != "2010" || e.Rating != 8.4 {
			t.Errorf("unexpected view fields %+v", e)
		}
		if e.ImageURL != "https://image.tmdb.org/t/p/w500/inc.jpg" {
			t.Errorf("unexpected image url %s", e.ImageURL)
		}
		if e.RowID != item.RowID {
			t.Errorf("expected row id %d, got %d", item.RowID, e.RowID)
		}
		if e.UserRating != nil {
			t.Error("to-watch entries carry no rating")
		}
	})

	t.Run("Add duplicate fails without panicking", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		if _, err := repo.Add(ctx, "u1", models.ToWatch, inception); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		_, err := repo.Add(ctx, "u1", models.ToWatch, inception)
		var le *models.ListError
		if !errors.As(err, &le) {
			t.Fatalf("expected ListError, got %v", err)
		}
		if le.Op != "add" || !errors.Is(err, shared.ErrConflict) {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("Add requires owner", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		if _, err := repo.Add(ctx, "", models.ToWatch, inception); !errors.Is(err, shared.ErrOwnerRequired) {
			t.Errorf("expected ErrOwnerRequired, got %v", err)
		}
	})

	t.Run("Remove is idempotent", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		if _, err := repo.Add(ctx, "u1", models.ToWatch, inception); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		ref := models.ItemRef{MediaID: 27205, MediaType: models.MediaMovie}
		removed, err := repo.Remove(ctx, "u1", models.ToWatch, ref)
		if err != nil || !removed {
			t.Fatalf("first remove = %v, %v", removed, err)
		}
		entries, _ := repo.Query(ctx, "u1", models.ToWatch)
		if len(entries) != 0 {
			t.Errorf("expected empty list after remove, got %d", len(entries))
		}

		removed, err = repo.Remove(ctx, "u1", models.ToWatch, ref)
		if err != nil {
			t.Errorf("second remove must not error, got %v", err)
		}
		if removed {
			t.Error("second remove should report no-op")
		}
	})

	t.Run("Remove without media type", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		if _, err := repo.Add(ctx, "u1", models.ToWatch, inception); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		removed, err := repo.Remove(ctx, "u1", models.ToWatch, models.ItemRef{MediaID: 27205})
		if err != nil || !removed {
			t.Errorf("remove by id only = %v, %v", removed, err)
		}
	})

	t.Run("Remove matches historical key shapes", func(t *testing.T) {
		repo, store, _ := setupListRepo(t)
		base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
		for _, item := range []*models.SavedItem{
			newItem("u1", models.ToWatch, "to-watch_550", `{"id":550,"title":"Fight Club"}`, base),
			newItem("u1", models.ToWatch, "movie_550", `{"id":550,"title":"Fight Club"}`, base),
			newItem("u1", models.ToWatch, "web-550", `{"id":550,"title":"Fight Club"}`, base),
			newItem("u1", models.ToWatch, "watchlist_5500", `{"id":5500,"title":"Other"}`, base),
		} {
			if err := store.Insert(ctx, item); err != nil {
				t.Fatalf("seed %s failed: %v", item.ItemKey, err)
			}
		}

		removed, err := repo.Remove(ctx, "u1", models.ToWatch, models.ItemRef{MediaID: 550})
		if err != nil || !removed {
			t.Fatalf("remove = %v, %v", removed, err)
		}

		entries, _ := repo.Query(ctx, "u1", models.ToWatch)
		if len(entries) != 1 || entries[0].ID != 5500 {
			t.Errorf("expected only id 5500 to remain, got %+v", entries)
		}
	})

	t.Run("Remove by row id", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		item, err := repo.Add(ctx, "u1", models.Watched, inception)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}

		removed, err := repo.Remove(ctx, "u1", models.Watched, models.ItemRef{RowID: item.RowID})
		if err != nil || !removed {
			t.Errorf("remove by row id = %v, %v", removed, err)
		}
	})

	t.Run("Query degrades unreadable rows", func(t *testing.T) {
		repo, store, _ := setupListRepo(t)
		base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
		_ = store.Insert(ctx, newItem("u1", models.Watched, "watched_1", `{"id":1,"title":"No date"}`, base))
		_ = store.Insert(ctx, newItem("u1", models.Watched, "watched_2", `{"id":2,"title":"Bad date","release_date":"someday"}`, base.Add(time.Second)))
		_ = store.Insert(ctx, newItem("u1", models.Watched, "watched_3", `not json`, base.Add(2*time.Second)))

		entries, err := repo.Query(ctx, "u1", models.Watched)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 readable entries, got %d", len(entries))
		}
		for _, e := range entries {
			if e.Year != models.UnknownYear {
				t.Errorf("expected Unknown year for %d, got %s", e.ID, e.Year)
			}
		}
		if entries[0].ID != 2 {
			t.Errorf("expected newest first, got %d", entries[0].ID)
		}
	})

	t.Run("Query anonymous", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		entries, err := repo.Query(ctx, "", models.ToWatch)
		if err != nil || len(entries) != 0 {
			t.Errorf("anonymous query = %v, %v", entries, err)
		}
	})

	t.Run("GetWatched", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		rating := 8.0
		p := models.NewPayload(inception, time.Now())
		p.UserRating = &rating
		if _, err := repo.Replace(ctx, "u1", models.Watched, p); err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		got, err := repo.GetWatched(ctx, "u1", 27205)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got == nil || got.UserRating == nil || *got.UserRating != 8 {
			t.Errorf("unexpected payload %+v", got)
		}

		missing, err := repo.GetWatched(ctx, "u1", 1)
		if err != nil || missing != nil {
			t.Errorf("not found should be nil, nil; got %v, %v", missing, err)
		}
	})

	t.Run("GetWatched finds other key shapes", func(t *testing.T) {
		repo, store, _ := setupListRepo(t)
		_ = store.Insert(ctx, newItem("u1", models.Watched, "movie_77", `{"id":77,"title":"Old","user_rating":5}`, time.Now()))

		got, err := repo.GetWatched(ctx, "u1", 77)
		if err != nil || got == nil || got.Title != "Old" {
			t.Errorf("expected legacy row, got %+v, %v", got, err)
		}
	})

	t.Run("Replace collapses duplicates", func(t *testing.T) {
		repo, store, _ := setupListRepo(t)
		_ = store.Insert(ctx, newItem("u1", models.Watched, "movie_27205", `{"id":27205,"user_rating":3}`, time.Now()))

		rating := 9.0
		p := models.NewPayload(inception, time.Now())
		p.UserRating = &rating
		if _, err := repo.Replace(ctx, "u1", models.Watched, p); err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		entries, _ := repo.Query(ctx, "u1", models.Watched)
		if len(entries) != 1 || entries[0].UserRating == nil || *entries[0].UserRating != 9 {
			t.Errorf("expected one row rated 9, got %+v", entries)
		}
	})

	t.Run("Contains Count Clear", func(t *testing.T) {
		repo, _, _ := setupListRepo(t)
		_, _ = repo.Add(ctx, "u1", models.ToWatch, inception)
		_, _ = repo.Add(ctx, "u1", models.ToWatch, models.Media{ID: 1399, Name: "Game of Thrones", FirstAirDate: "2011-04-17"})
		_, _ = repo.Add(ctx, "u1", models.Watched, models.Media{ID: 603, Title: "The Matrix"})

		if ok, err := repo.Contains(ctx, "u1", models.ToWatch, 1399, models.MediaTV); err != nil || !ok {
			t.Errorf("expected tv 1399 on list, got %v, %v", ok, err)
		}
		if ok, _ := repo.Contains(ctx, "u1", models.ToWatch, 1399, models.MediaMovie); ok {
			t.Error("movie 1399 is a different title")
		}
		if n, err := repo.Count(ctx, "u1", models.ToWatch); err != nil || n != 2 {
			t.Errorf("expected count 2, got %d, %v", n, err)
		}

		n, err := repo.Clear(ctx, "u1")
		if err != nil || n != 3 {
			t.Errorf("expected 3 cleared rows, got %d, %v", n, err)
		}
		if n, _ := repo.Count(ctx, "u1", models.Watched); n != 0 {
			t.Errorf("expected empty watched list, got %d", n)
		}
	})

	t.Run("publishes changes", func(t *testing.T) {
		repo, _, feed := setupListRepo(t)
		events, cancel := feed.Subscribe("u1")
		defer cancel()

		_, _ = repo.Add(ctx, "u1", models.ToWatch, inception)
		_, _ = repo.Remove(ctx, "u1", models.ToWatch, models.ItemRef{MediaID: 27205})
		_, _ = repo.Remove(ctx, "u1", models.ToWatch, models.ItemRef{MediaID: 27205})

		want := []models.ChangeAction{models.ChangeInsert, models.ChangeDelete}
		for _, action := range want {
			select {
			case ev := <-events:
				if ev.Action != action || ev.MediaID != 27205 || ev.List != models.ToWatch {
					t.Errorf("unexpected event %+v", ev)
				}
			default:
				t.Fatalf("expected %s event", action)
			}
		}
		select {
		case ev := <-events:
			t.Errorf("no-op remove must not publish, got %+v", ev)
		default:
		}
	})
}
