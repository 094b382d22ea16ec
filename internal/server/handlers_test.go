package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vibewatch/internal/models"
	tu "github.com/desertthunder/vibewatch/internal/testing"
)

func TestAuthRoutes(t *testing.T) {
	t.Run("signup then signin", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodPost, "/api/auth/signup", "", credentials{Email: "bob@example.com", Password: "hunter22", ConfirmPassword: "hunter22"})
		require.Equal(t, http.StatusCreated, statusOf(rec), rec.Body.String())
		session := decode[models.Session](t, rec)
		assert.NotEmpty(t, session.AccessToken)
		assert.Equal(t, "bob@example.com", session.User.Email)

		rec = env.do(t, http.MethodPost, "/api/auth/signin", "", credentials{Email: "bob@example.com", Password: "hunter22"})
		require.Equal(t, http.StatusOK, statusOf(rec))

		rec = env.do(t, http.MethodPost, "/api/auth/signin", "", credentials{Email: "bob@example.com", Password: "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, statusOf(rec))
	})

	t.Run("signup rejects mismatched passwords", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/auth/signup", "", credentials{Email: "bob@example.com", Password: "hunter22", ConfirmPassword: "hunter23"})
		assert.Equal(t, http.StatusBadRequest, statusOf(rec))
		assert.Contains(t, decode[errorResponse](t, rec).Error, "passwords do not match")
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/auth/signin", "", "not an object")
		assert.Equal(t, http.StatusBadRequest, statusOf(rec))
	})

	t.Run("reset is accepted for unknown accounts", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/auth/reset", "", credentials{Email: "nobody@example.com"})
		assert.Equal(t, http.StatusAccepted, statusOf(rec))
	})

	t.Run("me", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.signUp(t, "carol@example.com")

		rec := env.do(t, http.MethodGet, "/api/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, statusOf(rec))

		rec = env.do(t, http.MethodGet, "/api/me", session.AccessToken, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		body := decode[struct {
			User    models.Identity `json:"user"`
			Profile models.Profile  `json:"profile"`
		}](t, rec)
		assert.Equal(t, session.User.UserID, body.User.UserID)
		assert.Equal(t, "carol", body.Profile.Username)
	})

	t.Run("signout", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.signUp(t, "dan@example.com")

		assert.Equal(t, http.StatusUnauthorized, statusOf(env.do(t, http.MethodPost, "/api/auth/signout", "", nil)))
		assert.Equal(t, http.StatusNoContent, statusOf(env.do(t, http.MethodPost, "/api/auth/signout", session.AccessToken, nil)))
	})
}

func TestListRoutes(t *testing.T) {
	dune := tu.Movie(438631, "Dune", "2021-09-15")

	t.Run("add, query, count, remove", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "erin@example.com").AccessToken

		rec := env.do(t, http.MethodPost, "/api/lists/to-watch", token, dune)
		require.Equal(t, http.StatusCreated, statusOf(rec), rec.Body.String())
		entry := decode[models.ListEntry](t, rec)
		assert.Equal(t, int64(438631), entry.ID)
		assert.Equal(t, "Dune", entry.Title)

		rec = env.do(t, http.MethodPost, "/api/lists/to-watch", token, dune)
		assert.Equal(t, http.StatusConflict, statusOf(rec), "adding twice hits the unique key")

		rec = env.do(t, http.MethodGet, "/api/lists/watchlist", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		list := decode[listResponse](t, rec)
		assert.Equal(t, models.ToWatch, list.List)
		require.Len(t, list.Items, 1)
		assert.False(t, list.Degraded)

		rec = env.do(t, http.MethodGet, "/api/lists/to-watch/count", token, nil)
		assert.Equal(t, 1, decode[countEvent](t, rec).Count)

		rec = env.do(t, http.MethodDelete, "/api/lists/to-watch/438631?type=movie", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		assert.True(t, decode[map[string]bool](t, rec)["removed"])

		rec = env.do(t, http.MethodDelete, "/api/lists/to-watch/438631", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		assert.False(t, decode[map[string]bool](t, rec)["removed"], "removing an absent item is not an error")
	})

	t.Run("anonymous callers read empty lists and cannot write", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.do(t, http.MethodGet, "/api/lists/watched", "", nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		assert.Empty(t, decode[listResponse](t, rec).Items)

		rec = env.do(t, http.MethodPost, "/api/lists/watched", "", dune)
		assert.Equal(t, http.StatusUnauthorized, statusOf(rec))
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/lists/watched", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, statusOf(rec))
	})

	t.Run("unknown list", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/lists/favorites", "", nil)
		assert.Equal(t, http.StatusBadRequest, statusOf(rec))
	})

	t.Run("busy item answers 409", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.signUp(t, "fay@example.com")

		release, err := env.guard.Acquire(session.User.UserID, models.ToWatch, models.MediaMovie, dune.ID)
		require.NoError(t, err)
		defer release()

		rec := env.do(t, http.MethodPost, "/api/lists/to-watch", session.AccessToken, dune)
		assert.Equal(t, http.StatusConflict, statusOf(rec))
		assert.Contains(t, decode[errorResponse](t, rec).Error, "pending change")
	})

	t.Run("toggle", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "gus@example.com").AccessToken

		rec := env.do(t, http.MethodPost, "/api/lists/to-watch/toggle", token, dune)
		require.Equal(t, http.StatusOK, statusOf(rec))
		assert.Equal(t, true, decode[map[string]any](t, rec)["onList"])

		rec = env.do(t, http.MethodPost, "/api/lists/to-watch/toggle", token, dune)
		assert.Equal(t, false, decode[map[string]any](t, rec)["onList"])
	})
}

func TestRatingRoutes(t *testing.T) {
	severance := tu.Show(95396, "Severance", "2022-02-17")

	t.Run("rating promotes to watched", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "hal@example.com").AccessToken

		require.Equal(t, http.StatusCreated, statusOf(env.do(t, http.MethodPost, "/api/lists/to-watch", token, severance)))

		rec := env.do(t, http.MethodPost, "/api/ratings", token, rateRequest{Media: severance, Rating: 9.5})
		require.Equal(t, http.StatusOK, statusOf(rec), rec.Body.String())
		res := decode[struct {
			Entry                models.ListEntry `json:"entry"`
			RemovedFromWatchlist bool             `json:"removedFromWatchlist"`
			Warning              string           `json:"warning"`
		}](t, rec)
		assert.True(t, res.RemovedFromWatchlist)
		assert.Empty(t, res.Warning)
		assert.Equal(t, models.MediaTV, res.Entry.MediaType)

		rec = env.do(t, http.MethodGet, "/api/watched/95396", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		payload := decode[models.Payload](t, rec)
		require.NotNil(t, payload.UserRating)
		assert.Equal(t, 9.5, *payload.UserRating)

		rec = env.do(t, http.MethodGet, "/api/lists/to-watch/count", token, nil)
		assert.Zero(t, decode[countEvent](t, rec).Count)
	})

	t.Run("invalid rating", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "ivy@example.com").AccessToken

		rec := env.do(t, http.MethodPost, "/api/ratings", token, rateRequest{Media: severance, Rating: 7.25})
		assert.Equal(t, http.StatusBadRequest, statusOf(rec))
	})

	t.Run("unwatched title is not found", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signUp(t, "jo@example.com").AccessToken

		rec := env.do(t, http.MethodGet, "/api/watched/1", token, nil)
		assert.Equal(t, http.StatusNotFound, statusOf(rec))
	})
}

func TestCatalogRoutes(t *testing.T) {
	dune := tu.Movie(438631, "Dune", "2021-09-15")
	arrival := tu.Movie(329865, "Arrival", "2016-11-10")

	t.Run("trending is reconciled for the caller", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.trending = []models.Media{dune, arrival}
		token := env.signUp(t, "kim@example.com").AccessToken
		require.Equal(t, http.StatusCreated, statusOf(env.do(t, http.MethodPost, "/api/lists/to-watch", token, arrival)))

		rec := env.do(t, http.MethodGet, "/api/catalog/trending", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		res := decode[catalogResponse](t, rec)
		require.Len(t, res.Items, 2)
		assert.False(t, res.Items[0].InWatchlist)
		assert.True(t, res.Items[1].InWatchlist)

		rec = env.do(t, http.MethodGet, "/api/catalog/trending", "", nil)
		res = decode[catalogResponse](t, rec)
		assert.False(t, res.Items[1].InWatchlist, "anonymous callers see no flags")
	})

	t.Run("home", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.trending = []models.Media{dune, arrival}
		env.catalog.people = []models.Person{{ID: 287, Name: "Brad Pitt"}}
		token := env.signUp(t, "ash@example.com").AccessToken
		require.Equal(t, http.StatusCreated, statusOf(env.do(t, http.MethodPost, "/api/lists/to-watch", token, dune)))

		rec := env.do(t, http.MethodGet, "/api/catalog/home", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		res := decode[homeResponse](t, rec)
		require.Len(t, res.Trending, 2)
		assert.True(t, res.Trending[0].InWatchlist)
		assert.Len(t, res.People, 1)
		assert.False(t, res.Degraded)
	})

	t.Run("catalog failure degrades", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.err = errors.New("upstream down")

		rec := env.do(t, http.MethodGet, "/api/catalog/trending", "", nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		res := decode[catalogResponse](t, rec)
		assert.True(t, res.Degraded)
		assert.Empty(t, res.Items)
	})

	t.Run("search", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.trending = []models.Media{dune, arrival}

		assert.Equal(t, http.StatusBadRequest, statusOf(env.do(t, http.MethodGet, "/api/catalog/search", "", nil)))
		assert.Equal(t, http.StatusBadRequest, statusOf(env.do(t, http.MethodGet, "/api/catalog/search?q=dune&page=0", "", nil)))

		rec := env.do(t, http.MethodGet, "/api/catalog/search?q=dune", "", nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		res := decode[catalogResponse](t, rec)
		require.Len(t, res.Items, 1)
		assert.Equal(t, int64(438631), res.Items[0].ID)
	})

	t.Run("title with list flags", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.details[dune.ID] = &models.Details{Media: dune, Tagline: "Beyond fear, destiny awaits."}
		token := env.signUp(t, "lee@example.com").AccessToken

		rec := env.do(t, http.MethodPost, "/api/ratings", token, rateRequest{Media: dune, Rating: 8})
		require.Equal(t, http.StatusOK, statusOf(rec))

		rec = env.do(t, http.MethodGet, "/api/catalog/movie/438631", token, nil)
		require.Equal(t, http.StatusOK, statusOf(rec), rec.Body.String())
		res := decode[struct {
			Tagline     string   `json:"tagline"`
			InWatchlist bool     `json:"inWatchlist"`
			Watched     bool     `json:"watched"`
			UserRating  *float64 `json:"userRating"`
		}](t, rec)
		assert.Equal(t, "Beyond fear, destiny awaits.", res.Tagline)
		assert.False(t, res.InWatchlist)
		assert.True(t, res.Watched)
		require.NotNil(t, res.UserRating)
		assert.Equal(t, 8.0, *res.UserRating)

		assert.Equal(t, http.StatusNotFound, statusOf(env.do(t, http.MethodGet, "/api/catalog/movie/1", token, nil)))
		assert.Equal(t, http.StatusBadRequest, statusOf(env.do(t, http.MethodGet, "/api/catalog/person/1", token, nil)))
	})

	t.Run("health", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/health", "", nil)
		require.Equal(t, http.StatusOK, statusOf(rec))
		body := decode[map[string]string](t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "local", body["auth"])
		assert.Equal(t, "mobile", body["keyScheme"])
	})
}
