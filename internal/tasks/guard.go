package tasks

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// ItemGuard tracks in-flight mutations per (owner, list, title).
type ItemGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewItemGuard creates an empty guard.
func NewItemGuard() *ItemGuard {
	return &ItemGuard{busy: make(map[string]struct{})}
}

func guardKey(owner string, kind models.ListKind, mt models.MediaType, id int64) string {
	if !mt.Valid() {
		mt = models.MediaMovie
	}
	return owner + "|" + string(kind) + "|" + string(mt) + "_" + strconv.FormatInt(id, 10)
}

// Acquire marks the item busy. It returns [shared.ErrItemBusy] if a mutation is already in flight,
// otherwise a release func that is safe to call more than once.
func (g *ItemGuard) Acquire(owner string, kind models.ListKind, mt models.MediaType, id int64) (func(), error) {
	key := guardKey(owner, kind, mt, id)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[key]; ok {
		return nil, fmt.Errorf("%w: %s %s_%d", shared.ErrItemBusy, kind.Label(), mt, id)
	}
	g.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether a mutation for the item is in flight.
func (g *ItemGuard) Busy(owner string, kind models.ListKind, mt models.MediaType, id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.busy[guardKey(owner, kind, mt, id)]
	return ok
}
