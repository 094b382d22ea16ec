package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
	tu "github.com/desertthunder/vibewatch/internal/testing"
)

// fakeCatalog serves fixed results.
type fakeCatalog struct {
	trending []models.Media
	people   []models.Person
	details  map[int64]*models.Details
	err      error
}

func (c *fakeCatalog) Trending(context.Context) ([]models.Media, error) { return c.trending, c.err }
func (c *fakeCatalog) PopularPeople(context.Context) ([]models.Person, error) {
	return c.people, c.err
}
func (c *fakeCatalog) Search(_ context.Context, q string, page int) (*models.Page[models.Media], error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []models.Media
	for _, m := range c.trending {
		if strings.Contains(strings.ToLower(m.DisplayTitle()), strings.ToLower(q)) {
			out = append(out, m)
		}
	}
	return &models.Page[models.Media]{Page: page, Results: out, TotalPages: 1, TotalResults: len(out)}, nil
}
func (c *fakeCatalog) Details(_ context.Context, mt models.MediaType, id int64) (*models.Details, error) {
	if c.err != nil {
		return nil, c.err
	}
	d, ok := c.details[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return d, nil
}
func (c *fakeCatalog) ExternalIDs(context.Context, models.MediaType, int64) (*models.ExternalIDs, error) {
	return &models.ExternalIDs{}, c.err
}
func (c *fakeCatalog) Collection(_ context.Context, id int64) (*models.Collection, error) {
	return &models.Collection{ID: id}, c.err
}
func (c *fakeCatalog) Recommendations(context.Context, models.MediaType, int64) ([]models.Media, error) {
	return nil, c.err
}
func (c *fakeCatalog) Similar(context.Context, models.MediaType, int64) ([]models.Media, error) {
	return nil, c.err
}

type testEnv struct {
	srv     *Server
	lists   *repositories.ListRepository
	auth    *services.LocalAuth
	catalog *fakeCatalog
	guard   *tasks.ItemGuard
	logs    *bytes.Buffer
}

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return shared.NewLogger(buf)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := tu.NewTestDB(t)
	logs := &bytes.Buffer{}
	logger := quietLogger(logs)

	auth, err := services.NewLocalAuth(repositories.NewUserRepository(db, shared.DialectSQLite), services.LocalAuthOpts{
		Secret: "test-secret",
		Logger: logger,
	})
	require.NoError(t, err)

	lists := repositories.NewListRepository(repositories.NewSQLItemStore(db, shared.DialectSQLite), repositories.ListRepositoryOpts{
		Feed:   repositories.NewFeed(8),
		Logger: logger,
	})
	catalog := &fakeCatalog{details: map[int64]*models.Details{}}
	guard := tasks.NewItemGuard()

	srv := New(Options{Lists: lists, Catalog: catalog, Auth: auth, Guard: guard, Logger: logger})
	return &testEnv{srv: srv, lists: lists, auth: auth, catalog: catalog, guard: guard, logs: logs}
}

// signUp creates an account and returns its session.
func (e *testEnv) signUp(t *testing.T, email string) *models.Session {
	t.Helper()
	session, err := e.auth.SignUp(context.Background(), email, "hunter22")
	require.NoError(t, err)
	return session
}

// do sends a request through the server. body is JSON encoded unless it is nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func statusOf(rec *httptest.ResponseRecorder) int {
	return rec.Result().StatusCode
}

var _ http.Handler = (*Server)(nil)
