package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	tu "github.com/desertthunder/vibewatch/internal/testing"
)

type fakeCatalog struct {
	services.Catalog
	trending []models.Media
	err      error
}

func (c *fakeCatalog) Trending(context.Context) ([]models.Media, error) { return c.trending, c.err }

type fakeViewer struct {
	id models.Identity
}

func (v *fakeViewer) Identity() models.Identity             { return v.id }
func (v *fakeViewer) OnChange(func(models.Identity)) func() { return func() {} }

var signedIn = models.Identity{UserID: "u1", Email: "viewer@example.com"}

func newTestModel(t *testing.T, id models.Identity) (*Model, *repositories.ListRepository, *fakeCatalog) {
	t.Helper()
	logger := shared.NewLogger(&bytes.Buffer{})
	store := repositories.NewSQLItemStore(tu.NewTestDB(t), shared.DialectSQLite)
	lists := repositories.NewListRepository(store, repositories.ListRepositoryOpts{
		Feed:   repositories.NewFeed(8),
		Logger: logger,
	})
	catalog := &fakeCatalog{trending: []models.Media{
		tu.Movie(550, "Fight Club", "1999-10-15"),
		tu.Show(1399, "Game of Thrones", "2011-04-17"),
	}}
	m := NewModel(context.Background(), Options{
		Viewer:  &fakeViewer{id: id},
		Catalog: catalog,
		Lists:   lists,
		Logger:  logger,
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	t.Cleanup(m.unsubscribe)
	return m, lists, catalog
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd, feeds its message back into the model and returns it.
func run(t *testing.T, m *Model, cmd tea.Cmd) Msg {
	t.Helper()
	require.NotNil(t, cmd)
	msg, ok := cmd().(Msg)
	require.True(t, ok, "expected a ui.Msg")
	m.Update(msg)
	return msg
}

func TestTabs(t *testing.T) {
	m, _, _ := newTestModel(t, signedIn)
	assert.Equal(t, TrendingTab, m.tab)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, ToWatchTab, m.tab)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TrendingTab, m.tab)

	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, WatchedTab, m.tab)
}

func TestTrending(t *testing.T) {
	t.Run("badges reflect membership", func(t *testing.T) {
		m, lists, catalog := newTestModel(t, signedIn)
		_, err := lists.Add(context.Background(), "u1", models.ToWatch, catalog.trending[0])
		require.NoError(t, err)

		msg := run(t, m, m.fetchTrending())
		assert.Equal(t, MsgTrendingFetched, msg.kind)

		items := m.tabs[TrendingTab].Items()
		require.Len(t, items, 2)
		assert.True(t, items[0].(mediaItem).media.InWatchlist)
		assert.False(t, items[1].(mediaItem).media.InWatchlist)
	})

	t.Run("catalog failure", func(t *testing.T) {
		m, _, catalog := newTestModel(t, signedIn)
		catalog.err = shared.ErrServiceUnavailable

		run(t, m, m.fetchTrending())
		assert.Contains(t, m.status, "Trending unavailable")
		assert.Empty(t, m.tabs[TrendingTab].Items())
	})
}

func TestToggle(t *testing.T) {
	m, lists, _ := newTestModel(t, signedIn)
	run(t, m, m.fetchTrending())

	_, cmd := m.Update(runes("w"))
	require.NotNil(t, cmd)

	_, again := m.Update(runes("w"))
	assert.Nil(t, again, "second submit must wait for the first")
	assert.Contains(t, m.status, "still being saved")

	msg := run(t, m, cmd)
	data := msg.data.(toggleData)
	require.NoError(t, data.err)
	assert.True(t, data.on)
	assert.Empty(t, m.pending)
	assert.Contains(t, m.status, "Added Fight Club")

	ok, err := lists.Contains(context.Background(), "u1", models.ToWatch, 550, models.MediaMovie)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("feed event refreshes", func(t *testing.T) {
		ev, ok := m.waitForChange()().(Msg)
		require.True(t, ok)
		assert.Equal(t, MsgListChanged, ev.kind)
		assert.Equal(t, models.ToWatch, ev.data.(models.ChangeEvent).List)

		_, cmd := m.Update(ev)
		assert.NotNil(t, cmd)

		run(t, m, m.fetchCount())
		assert.Equal(t, 1, m.count)
		assert.Contains(t, m.View(), "1 to watch")
	})
}

func TestRatingPrompt(t *testing.T) {
	t.Run("rejects bad input", func(t *testing.T) {
		m, _, _ := newTestModel(t, signedIn)
		run(t, m, m.fetchTrending())

		m.Update(runes("r"))
		require.True(t, m.rating)
		assert.Contains(t, m.View(), "Rate Fight Club")

		for _, value := range []string{"11", "abc", "7.3", "-1"} {
			m.input.SetValue(value)
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
			assert.Nil(t, cmd, value)
			assert.ErrorIs(t, m.inputErr, shared.ErrInvalidRating, value)
			assert.True(t, m.rating)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		assert.False(t, m.rating)
		assert.Nil(t, m.target)
	})

	t.Run("rating promotes to watched", func(t *testing.T) {
		m, lists, catalog := newTestModel(t, signedIn)
		ctx := context.Background()
		_, err := lists.Add(ctx, "u1", models.ToWatch, catalog.trending[0])
		require.NoError(t, err)
		run(t, m, m.fetchTrending())

		m.Update(runes("r"))
		m.input.SetValue("8.5")
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.False(t, m.rating)

		msg := run(t, m, cmd)
		require.NoError(t, msg.data.(ratedData).err)
		assert.Contains(t, m.status, "Rated Fight Club ★ 8.5 and moved it to Watched")

		watched, err := lists.Query(ctx, "u1", models.Watched)
		require.NoError(t, err)
		require.Len(t, watched, 1)
		require.NotNil(t, watched[0].UserRating)
		assert.Equal(t, 8.5, *watched[0].UserRating)

		still, err := lists.Contains(ctx, "u1", models.ToWatch, 550, models.MediaMovie)
		require.NoError(t, err)
		assert.False(t, still)
	})
}

func TestRemove(t *testing.T) {
	m, lists, catalog := newTestModel(t, signedIn)
	ctx := context.Background()
	_, err := lists.Add(ctx, "u1", models.Watched, catalog.trending[1])
	require.NoError(t, err)

	run(t, m, m.fetchList(models.Watched))
	require.Len(t, m.tabs[WatchedTab].Items(), 1)

	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, WatchedTab, m.tab)

	_, cmd := m.Update(runes("d"))
	msg := run(t, m, cmd)
	data := msg.data.(removedData)
	require.NoError(t, data.err)
	assert.True(t, data.removed)
	assert.Contains(t, m.status, "Removed Game of Thrones from Watched")

	n, err := lists.Count(ctx, "u1", models.Watched)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnonymous(t *testing.T) {
	m, _, _ := newTestModel(t, models.Identity{})
	run(t, m, m.fetchTrending())

	_, cmd := m.Update(runes("w"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "sign in")

	_, cmd = m.Update(runes("r"))
	assert.Nil(t, cmd)
	assert.False(t, m.rating)

	msg := run(t, m, m.fetchList(models.ToWatch))
	assert.NoError(t, msg.data.(listData).err)
	assert.Contains(t, m.View(), "Not signed in")
	assert.Nil(t, m.waitForChange())
}

func TestIdentityChanged(t *testing.T) {
	m, lists, _ := newTestModel(t, models.Identity{})
	feed := lists.Feed()
	assert.Zero(t, feed.Subscribers("u1"))

	_, cmd := m.Update(identityChangedMsg(signedIn))
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, feed.Subscribers("u1"))
	assert.Contains(t, m.status, "Signed in as viewer@example.com")

	m.Update(identityChangedMsg(models.Identity{}))
	assert.Zero(t, feed.Subscribers("u1"))
	assert.Contains(t, m.status, "Signed out")
}

func TestItems(t *testing.T) {
	rating := 8.0
	item := mediaItem{media: models.ReconciledMedia{
		Media:       tu.Movie(550, "Fight Club", "1999-10-15"),
		InWatchlist: true,
		Watched:     true,
		UserRating:  &rating,
	}}
	assert.Equal(t, "Fight Club", item.Title())
	desc := item.Description()
	for _, want := range []string{"Movie", "1999", "[to-watch]", "[★ 8]"} {
		assert.True(t, strings.Contains(desc, want), "%q missing from %q", want, desc)
	}

	entry := entryItem{entry: models.ListEntry{ID: 1399, Title: "Game of Thrones", MediaType: models.MediaTV, Year: "2011"}}
	assert.Contains(t, entry.Description(), "TV • 2011")
	assert.Equal(t, models.MediaTV, entry.media().Type())
}

func TestStaleEvents(t *testing.T) {
	m, _, _ := newTestModel(t, signedIn)
	ev := listChangedMsg(models.ChangeEvent{Owner: "someone-else", List: models.ToWatch})
	_, cmd := m.Update(ev)
	assert.NotNil(t, cmd, "keeps waiting for events")
}
