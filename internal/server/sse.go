package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/idgen"
)

const (
	// sseBufferSize is how many deliveries a slow stream may fall behind
	// before further deliveries are dropped.
	sseBufferSize = 64

	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent connection timeouts.
	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is a single delivery sent to an SSE client.
type sseEvent struct {
	ID   uint64
	Kind string
	Data []byte
}

// sseFilter selects the channel kinds a stream receives. Empty means all.
type sseFilter []string

func parseSSEFilter(q string) sseFilter {
	var kinds sseFilter
	for _, k := range strings.Split(q, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (f sseFilter) matches(kind string) bool {
	if len(f) == 0 {
		return true
	}
	for _, k := range f {
		if k == kind {
			return true
		}
	}
	return false
}

// handleEventStream handles GET /v1/sessions/{id}/events. It relays every
// delivery on the session's subjects as a server-sent event named after the
// channel kind. Observers only read; participants use the websocket gateway.
func (s *RegistryServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	// Ensure response supports flushing (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sessionID := r.PathValue("id")
	if !idgen.Valid(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	filter := parseSSEFilter(r.URL.Query().Get("kinds"))
	ch := make(chan sseEvent, sseBufferSize)
	var seq atomic.Uint64
	cancel, err := s.bus.Subscribe(events.SessionWildcard(sessionID), events.SubscribeOptions{}, func(m events.Message) {
		_, kind, ok := events.SplitSubject(m.Subject)
		if !ok || !filter.matches(kind) {
			return
		}
		select {
		case ch <- sseEvent{ID: seq.Add(1), Kind: kind, Data: m.Data}:
		default:
			// Drop if client is slow; never block the bus.
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer cancel()

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("sse: stream opened", "session_id", sessionID, "kinds", strings.Join(filter, ","))

	// Stream events until client disconnects.
	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			// Send a comment line as keepalive.
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the writer.
func writeSSEEvent(w http.ResponseWriter, evt sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Kind)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
