package repositories

import (
	"sync"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
)

// Feed fans list change events out to per-owner subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full misses the event
// and is expected to re-read the list on the next one.
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan models.ChangeEvent
	nextID int
	buffer int
}

// NewFeed creates a [Feed] whose subscriber channels hold buffer events.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{subs: make(map[string]map[int]chan models.ChangeEvent), buffer: buffer}
}

// Subscribe registers for the owner's events. The returned cancel func closes the channel and is safe to call twice.
func (f *Feed) Subscribe(owner string) (<-chan models.ChangeEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan models.ChangeEvent, f.buffer)
	if f.subs[owner] == nil {
		f.subs[owner] = make(map[int]chan models.ChangeEvent)
	}
	f.subs[owner][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[owner], id)
			if len(f.subs[owner]) == 0 {
				delete(f.subs, owner)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to the owner's subscribers.
func (f *Feed) Publish(ev models.ChangeEvent) {
	if f == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs[ev.Owner] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for owner.
func (f *Feed) Subscribers(owner string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[owner])
}
