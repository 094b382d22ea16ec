package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// keepAlive is how often an idle event stream sends a comment line.
var keepAlive = 25 * time.Second

type countEvent struct {
	List     models.ListKind `json:"list"`
	Count    int             `json:"count"`
	Degraded bool            `json:"degraded,omitempty"`
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, f http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// handleCountStream sends the list's count now and again after every change to that list.
func (s *Server) handleCountStream(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	uid, ok := owner(w, r)
	if !ok {
		return
	}
	feed := s.lists.Feed()
	if feed == nil {
		writeError(w, fmt.Errorf("%w: change feed is disabled", shared.ErrNotImplemented))
		return
	}
	f, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("%w: streaming unsupported", shared.ErrNotImplemented))
		return
	}

	events, cancel := feed.Subscribe(uid)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() error {
		n, err := s.lists.Count(r.Context(), uid, kind)
		return writeEvent(w, f, "count", countEvent{List: kind, Count: n, Degraded: err != nil})
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.List != kind {
				continue
			}
			if err := send(); err != nil {
				s.logger.Debug("event stream closed", "owner", uid, "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			f.Flush()
		}
	}
}
