package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// Tab identifies one of the TUI's list views.
type Tab int

const (
	TrendingTab Tab = iota
	ToWatchTab
	WatchedTab
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TrendingTab:
		return "Trending"
	case ToWatchTab:
		return "To-Watch"
	case WatchedTab:
		return "Watched"
	default:
		return "Unknown"
	}
}

func tabFor(kind models.ListKind) Tab {
	if kind == models.ToWatch {
		return ToWatchTab
	}
	return WatchedTab
}

// Viewer supplies the signed-in identity and reports when it changes.
type Viewer interface {
	Identity() models.Identity
	OnChange(cb func(models.Identity)) func()
}

// Options configures [NewModel].
type Options struct {
	Viewer  Viewer
	Catalog services.Catalog
	Lists   *repositories.ListRepository
	Guard   *tasks.ItemGuard
	Logger  *log.Logger
}

// Model is the bubbletea model for browsing trending titles and managing both lists.
type Model struct {
	ctx        context.Context
	catalog    services.Catalog
	lists      *repositories.ListRepository
	reconciler *tasks.Reconciler
	ratings    *tasks.Ratings
	guard      *tasks.ItemGuard
	logger     *log.Logger

	identity models.Identity
	events   <-chan models.ChangeEvent
	cancel   func()

	tab     Tab
	tabs    [tabCount]list.Model
	count   int
	pending map[string]struct{}

	rating   bool
	target   *models.Media
	input    textinput.Model
	inputErr error

	status      string
	statusStyle lipgloss.Style

	keys   keyMap
	help   help.Model
	width  int
	height int
}

// NewModel creates the TUI model and subscribes to the current owner's list changes.
func NewModel(ctx context.Context, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	guard := opts.Guard
	if guard == nil {
		guard = tasks.NewItemGuard()
	}

	input := textinput.New()
	input.Prompt = "Rating: "
	input.Placeholder = "0-10 in half steps"
	input.CharLimit = 4

	m := &Model{
		ctx:        ctx,
		catalog:    opts.Catalog,
		lists:      opts.Lists,
		reconciler: tasks.NewReconciler(opts.Lists, logger),
		ratings:    tasks.NewRatings(opts.Lists, guard, logger),
		guard:      guard,
		logger:     shared.WithLogger(logger, "component", "tui"),
		pending:    make(map[string]struct{}),
		input:      input,
		keys:       newKeyMap(),
		help:       help.New(),
	}
	if opts.Viewer != nil {
		m.identity = opts.Viewer.Identity()
	}
	for t := range tabCount {
		l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
		l.Title = t.String()
		l.SetShowHelp(false)
		m.tabs[t] = l
	}
	m.subscribe()
	return m
}

// Run starts the program and stops following changes when it exits.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) error {
	m := NewModel(ctx, opts)
	defer m.unsubscribe()

	programOpts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, programOpts...)
	p := tea.NewProgram(m, programOpts...)
	if opts.Viewer != nil {
		stop := opts.Viewer.OnChange(func(id models.Identity) {
			p.Send(identityChangedMsg(id))
		})
		defer stop()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init loads every tab and starts following list changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.waitForChange())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		for i := range m.tabs {
			m.tabs[i].SetSize(max(msg.Width-4, 0), max(msg.Height-10, 0))
		}
		return m, nil

	case tea.KeyMsg:
		if m.rating {
			return m.handleRatingKeys(msg)
		}
		if m.tabs[m.tab].FilterState() == list.Filtering {
			return m.updateCurrent(msg)
		}
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	if m.rating {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m.updateCurrent(msg)
}

// View renders the header, tab bar, the active list and the status line.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("VibeWatch"))
	b.WriteString("\n")
	if m.identity.Anonymous() {
		b.WriteString(styles.help.Render("Not signed in. Run `vibewatch auth login` to manage lists."))
	} else {
		fmt.Fprintf(&b, "%s · %s", m.identity.Email, styles.badge.Render(fmt.Sprintf("%d to watch", m.count)))
	}
	b.WriteString("\n\n")

	tabs := make([]string, 0, tabCount)
	for t := range tabCount {
		label := t.String()
		if t == ToWatchTab && !m.identity.Anonymous() {
			label = fmt.Sprintf("%s (%d)", label, m.count)
		}
		if t == m.tab {
			tabs = append(tabs, styles.activeTab.Render(label))
		} else {
			tabs = append(tabs, styles.tab.Render(label))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")
	b.WriteString(m.tabs[m.tab].View())
	b.WriteString("\n")

	if m.rating && m.target != nil {
		fmt.Fprintf(&b, "\nRate %s\n%s\n", styles.badge.Render(m.target.DisplayTitle()), m.input.View())
		if m.inputErr != nil {
			b.WriteString(styles.err.Render(m.inputErr.Error()))
			b.WriteString("\n")
		}
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.back}))
		return b.String()
	}

	if m.status != "" {
		b.WriteString(m.statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.next):
		m.tab = (m.tab + 1) % tabCount
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.tab = (m.tab + tabCount - 1) % tabCount
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.setStatus(styles.help, "Refreshing...")
		return m, m.refresh()
	case key.Matches(msg, m.keys.watch):
		media, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.toggle(models.ToWatch, media)
	case key.Matches(msg, m.keys.rate):
		media, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.openRating(media)
	case key.Matches(msg, m.keys.remove):
		item, ok := m.tabs[m.tab].SelectedItem().(entryItem)
		if !ok {
			return m, nil
		}
		kind := models.ToWatch
		if m.tab == WatchedTab {
			kind = models.Watched
		}
		return m, m.remove(kind, item)
	}
	return m.updateCurrent(msg)
}

func (m *Model) handleRatingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.closeRating()
		return m, nil
	case key.Matches(msg, m.keys.enter):
		value := strings.TrimSpace(m.input.Value())
		rating, err := strconv.ParseFloat(value, 64)
		if err != nil {
			m.inputErr = fmt.Errorf("%w: %q is not a number", shared.ErrInvalidRating, value)
			return m, nil
		}
		if err := tasks.ValidateRating(rating); err != nil {
			m.inputErr = err
			return m, nil
		}
		media := *m.target
		m.closeRating()
		return m, m.rate(media, rating)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTrendingFetched:
		data := msg.data.(trendingData)
		if data.err != nil && data.items == nil {
			m.setStatus(styles.err, "Trending unavailable: %v", data.err)
			return m, nil
		}
		if data.err != nil {
			m.setStatus(styles.warn, "List badges may be stale: %v", data.err)
		}
		items := make([]list.Item, len(data.items))
		for i, media := range data.items {
			items[i] = mediaItem{media: media}
		}
		return m, m.tabs[TrendingTab].SetItems(items)

	case MsgListFetched:
		data := msg.data.(listData)
		if data.err != nil {
			m.setStatus(styles.err, "Could not load %s: %v", tabFor(data.kind), data.err)
			return m, nil
		}
		items := make([]list.Item, len(data.entries))
		for i, entry := range data.entries {
			items[i] = entryItem{entry: entry}
		}
		return m, m.tabs[tabFor(data.kind)].SetItems(items)

	case MsgCountFetched:
		data := msg.data.(countData)
		if data.err != nil {
			m.logger.Warn("count failed", "error", data.err)
			return m, nil
		}
		m.count = data.count
		return m, nil

	case MsgListChanged:
		ev := msg.data.(models.ChangeEvent)
		if ev.Owner != m.identity.UserID {
			return m, m.waitForChange()
		}
		cmds := []tea.Cmd{m.fetchList(ev.List), m.fetchTrending(), m.waitForChange()}
		if ev.List == models.ToWatch {
			cmds = append(cmds, m.fetchCount())
		}
		return m, tea.Batch(cmds...)

	case MsgIdentityChanged:
		m.identity = msg.data.(models.Identity)
		m.pending = make(map[string]struct{})
		m.count = 0
		m.subscribe()
		if m.identity.Anonymous() {
			m.setStatus(styles.help, "Signed out")
		} else {
			m.setStatus(styles.ok, "Signed in as %s", m.identity.Email)
		}
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case MsgToggled:
		data := msg.data.(toggleData)
		delete(m.pending, pendingKey(data.kind, data.media))
		title := data.media.DisplayTitle()
		switch {
		case errors.Is(data.err, shared.ErrItemBusy):
			m.setStatus(styles.warn, "%s is still being saved", title)
		case data.err != nil:
			m.setStatus(styles.err, "Could not update %s: %v", title, data.err)
		case data.on:
			m.setStatus(styles.ok, "Added %s to %s", title, tabFor(data.kind))
		default:
			m.setStatus(styles.ok, "Removed %s from %s", title, tabFor(data.kind))
		}
		return m, m.afterMutation()

	case MsgRated:
		data := msg.data.(ratedData)
		delete(m.pending, pendingKey(models.Watched, data.media))
		delete(m.pending, pendingKey(models.ToWatch, data.media))
		title := data.media.DisplayTitle()
		switch {
		case errors.Is(data.err, shared.ErrPartialPromotion):
			m.setStatus(styles.warn, "Rated %s ★ %g but it is still on To-Watch", title, data.rating)
		case errors.Is(data.err, shared.ErrItemBusy):
			m.setStatus(styles.warn, "%s is still being saved", title)
		case data.err != nil:
			m.setStatus(styles.err, "Could not rate %s: %v", title, data.err)
		case data.result != nil && data.result.RemovedFromWatchlist:
			m.setStatus(styles.ok, "Rated %s ★ %g and moved it to Watched", title, data.rating)
		default:
			m.setStatus(styles.ok, "Rated %s ★ %g", title, data.rating)
		}
		return m, m.afterMutation()

	case MsgRemoved:
		data := msg.data.(removedData)
		delete(m.pending, pendingKey(data.kind, data.media))
		title := data.media.DisplayTitle()
		switch {
		case data.err != nil:
			m.setStatus(styles.err, "Could not remove %s: %v", title, data.err)
		case !data.removed:
			m.setStatus(styles.warn, "%s was not on %s", title, tabFor(data.kind))
		default:
			m.setStatus(styles.ok, "Removed %s from %s", title, tabFor(data.kind))
		}
		return m, m.afterMutation()
	}
	return m, nil
}

func (m *Model) updateCurrent(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.tabs[m.tab], cmd = m.tabs[m.tab].Update(msg)
	return m, cmd
}

func (m *Model) selected() (models.Media, bool) {
	switch item := m.tabs[m.tab].SelectedItem().(type) {
	case mediaItem:
		return item.media.Media, true
	case entryItem:
		return item.media(), true
	default:
		return models.Media{}, false
	}
}

func (m *Model) setStatus(style lipgloss.Style, format string, args ...any) {
	m.statusStyle = style
	m.status = fmt.Sprintf(format, args...)
}

func pendingKey(kind models.ListKind, media models.Media) string {
	return string(kind) + ":" + media.MembershipKey()
}

// claim marks the keys as pending, or reports false when any of them already is.
func (m *Model) claim(media models.Media, kinds ...models.ListKind) bool {
	for _, kind := range kinds {
		if _, ok := m.pending[pendingKey(kind, media)]; ok {
			m.setStatus(styles.warn, "%s is still being saved", media.DisplayTitle())
			return false
		}
	}
	for _, kind := range kinds {
		m.pending[pendingKey(kind, media)] = struct{}{}
	}
	return true
}

func (m *Model) signedIn() bool {
	if m.identity.Anonymous() {
		m.setStatus(styles.err, "%v: sign in to manage lists", shared.ErrNotAuthenticated)
		return false
	}
	return true
}

func (m *Model) openRating(media models.Media) tea.Cmd {
	if !m.signedIn() {
		return nil
	}
	m.rating = true
	m.target = &media
	m.inputErr = nil
	m.input.SetValue("")
	return m.input.Focus()
}

func (m *Model) closeRating() {
	m.rating = false
	m.target = nil
	m.inputErr = nil
	m.input.Blur()
}

func (m *Model) toggle(kind models.ListKind, media models.Media) tea.Cmd {
	if !m.signedIn() || !m.claim(media, kind) {
		return nil
	}
	owner := m.identity.UserID
	return func() tea.Msg {
		on, err := tasks.Toggle(m.ctx, m.lists, m.guard, owner, kind, media)
		return toggledMsg(kind, media, on, err)
	}
}

func (m *Model) rate(media models.Media, rating float64) tea.Cmd {
	if !m.signedIn() || !m.claim(media, models.Watched, models.ToWatch) {
		return nil
	}
	owner := m.identity.UserID
	return func() tea.Msg {
		result, err := m.ratings.Submit(m.ctx, owner, media, rating)
		return ratedMsg(media, rating, result, err)
	}
}

func (m *Model) remove(kind models.ListKind, item entryItem) tea.Cmd {
	media := item.media()
	if !m.signedIn() || !m.claim(media, kind) {
		return nil
	}
	owner := m.identity.UserID
	ref := models.ItemRef{MediaID: item.entry.ID, MediaType: item.entry.MediaType, RowID: item.entry.RowID}
	return func() tea.Msg {
		release, err := m.guard.Acquire(owner, kind, media.Type(), media.ID)
		if err != nil {
			return removedMsg(kind, media, false, err)
		}
		defer release()
		removed, err := m.lists.Remove(m.ctx, owner, kind, ref)
		return removedMsg(kind, media, removed, err)
	}
}

// afterMutation reloads everything when no feed will report the change.
func (m *Model) afterMutation() tea.Cmd {
	if m.lists.Feed() != nil {
		return nil
	}
	return m.refresh()
}

func (m *Model) refresh() tea.Cmd {
	return tea.Batch(m.fetchTrending(), m.fetchList(models.ToWatch), m.fetchList(models.Watched), m.fetchCount())
}

func (m *Model) fetchTrending() tea.Cmd {
	owner := m.identity.UserID
	return func() tea.Msg {
		items, err := m.catalog.Trending(m.ctx)
		if err != nil {
			return trendingFetchedMsg(nil, err)
		}
		reconciled, err := m.reconciler.Reconcile(m.ctx, owner, items)
		return trendingFetchedMsg(reconciled, err)
	}
}

func (m *Model) fetchList(kind models.ListKind) tea.Cmd {
	owner := m.identity.UserID
	return func() tea.Msg {
		if owner == "" {
			return listFetchedMsg(kind, nil, nil)
		}
		entries, err := m.lists.Query(m.ctx, owner, kind)
		return listFetchedMsg(kind, entries, err)
	}
}

func (m *Model) fetchCount() tea.Cmd {
	owner := m.identity.UserID
	return func() tea.Msg {
		if owner == "" {
			return countFetchedMsg(0, nil)
		}
		count, err := m.lists.Count(m.ctx, owner, models.ToWatch)
		return countFetchedMsg(count, err)
	}
}

// subscribe follows the current owner's changes, dropping any previous subscription.
func (m *Model) subscribe() {
	m.unsubscribe()
	feed := m.lists.Feed()
	if feed == nil || m.identity.Anonymous() {
		return
	}
	m.events, m.cancel = feed.Subscribe(m.identity.UserID)
}

func (m *Model) unsubscribe() {
	if m.cancel != nil {
		m.cancel()
	}
	m.events, m.cancel = nil, nil
}

// waitForChange blocks on the subscription captured at call time. A closed channel ends the wait.
func (m *Model) waitForChange() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return listChangedMsg(ev)
	}
}
