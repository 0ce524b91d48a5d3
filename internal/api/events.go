package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowline/flowline/internal/flow"
)

// streamExecutionEvents streams run lifecycle events via SSE. Buffered events
// are replayed first (from Last-Event-ID on reconnect), then the stream stays
// live until the run reaches a terminal status or the client disconnects.
// GET /api/executions/{id}/events
func (s *Server) streamExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	seq := 0
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			seq = n + 1
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the replay snapshot so no event falls in the gap; each
	// wakeup re-reads the buffer from seq, so duplicates cannot occur either.
	live := s.engine.Bus().Channel(r.Context(), 64)

	events, done, found := s.engine.Tracker().EventsSince(id, seq)
	if !found {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	seq = writeSSEEvents(w, events, seq)
	flusher.Flush()
	if done {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected; the run continues in the background.
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.ExecutionID != id {
				continue
			}
			events, done, found = s.engine.Tracker().EventsSince(id, seq)
			if !found {
				return
			}
			seq = writeSSEEvents(w, events, seq)
			flusher.Flush()
			if done {
				return
			}
		}
	}
}

// writeSSEEvents writes events with sequential ids starting at seq and
// returns the next sequence number.
func writeSSEEvents(w http.ResponseWriter, events []flow.Event, seq int) int {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, data)
		seq++
	}
	return seq
}
