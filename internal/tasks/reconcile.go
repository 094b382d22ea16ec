package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// Membership is a snapshot of an owner's lists keyed by "<mediaType>_<mediaId>".
type Membership struct {
	watchlist map[string]struct{}
	watched   map[string]*float64
}

// NewMembership indexes list entries. Entries without a media type count as movies.
func NewMembership(watchlist, watched []models.ListEntry) *Membership {
	m := &Membership{
		watchlist: make(map[string]struct{}, len(watchlist)),
		watched:   make(map[string]*float64, len(watched)),
	}
	for _, e := range watchlist {
		m.watchlist[entryKey(e)] = struct{}{}
	}
	for _, e := range watched {
		m.watched[entryKey(e)] = e.UserRating
	}
	return m
}

func entryKey(e models.ListEntry) string {
	mt := e.MediaType
	if !mt.Valid() {
		mt = models.MediaMovie
	}
	return models.MembershipKey(mt, e.ID)
}

// Has reports whether the title is on the list.
func (m *Membership) Has(kind models.ListKind, media models.Media) bool {
	key := media.MembershipKey()
	if kind == models.Watched {
		_, ok := m.watched[key]
		return ok
	}
	_, ok := m.watchlist[key]
	return ok
}

// Annotate flags each title with its list membership and the viewer's rating.
func (m *Membership) Annotate(items []models.Media) []models.ReconciledMedia {
	out := make([]models.ReconciledMedia, len(items))
	for i, item := range items {
		key := item.MembershipKey()
		_, saved := m.watchlist[key]
		rating, watched := m.watched[key]
		out[i] = models.ReconciledMedia{Media: item, InWatchlist: saved, Watched: watched, UserRating: rating}
	}
	return out
}

// Reconciler computes list membership flags for catalog batches without per-item lookups.
type Reconciler struct {
	lists  *repositories.ListRepository
	logger *log.Logger
}

// NewReconciler creates a reconciler over lists.
func NewReconciler(lists *repositories.ListRepository, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Reconciler{lists: lists, logger: shared.WithLogger(logger, "component", "reconcile")}
}

// Load reads both lists of owner concurrently.
//
// A list that fails to load is treated as empty; the first error is returned alongside the partial snapshot.
func (r *Reconciler) Load(ctx context.Context, owner string) (*Membership, error) {
	if owner == "" {
		return NewMembership(nil, nil), nil
	}

	var watchlist, watched []models.ListEntry
	// one failed list must not cancel the other's query
	p := pool.New().WithErrors().WithFirstError()
	p.Go(func() error {
		entries, err := r.lists.Query(ctx, owner, models.ToWatch)
		watchlist = entries
		return err
	})
	p.Go(func() error {
		entries, err := r.lists.Query(ctx, owner, models.Watched)
		watched = entries
		return err
	})
	err := p.Wait()
	if err != nil {
		r.logger.Warn("reconciling against partial lists", "owner", owner, "error", err)
	}
	return NewMembership(watchlist, watched), err
}

// Reconcile annotates items with owner's list membership.
func (r *Reconciler) Reconcile(ctx context.Context, owner string, items []models.Media) ([]models.ReconciledMedia, error) {
	m, err := r.Load(ctx, owner)
	return m.Annotate(items), err
}
