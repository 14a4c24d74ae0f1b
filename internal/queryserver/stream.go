package queryserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/simcash/simcash/internal/events"
)

// EventSubscriber is the subset of internal/events.Bus a StreamHandler
// needs — Subscribe/Unsubscribe over a live Record feed.
type EventSubscriber interface {
	Subscribe() chan events.Record
	Unsubscribe(chan events.Record)
}

// StreamHandler serves GET /api/events/stream as Server-Sent Events,
// optionally filtered by event_type: same SSE header set, heartbeat
// ticker, and client-disconnect detection via r.Context().Done() as
// any long-lived SSE handler, subscribing directly to events.Record
// and filtering by event_type rather than any domain-specific key.
type StreamHandler struct {
	bus EventSubscriber
	log zerolog.Logger
}

// NewStreamHandler builds a StreamHandler over a live event bus.
func NewStreamHandler(bus EventSubscriber, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, log: log.With().Str("handler", "events_stream").Logger()}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	filterType := events.Type(r.URL.Query().Get("event_type"))

	h.log.Info().Str("event_type_filter", string(filterType)).Msg("client connected to event stream")

	feed := h.bus.Subscribe()
	defer h.bus.Unsubscribe(feed)

	done := r.Context().Done()

	fmt.Fprint(w, "event: connected\n")
	fmt.Fprint(w, "data: {\"message\": \"connected to event stream\"}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("client disconnected from event stream")
			return

		case rec, open := <-feed:
			if !open {
				return
			}
			if filterType != "" && rec.EventType != filterType {
				continue
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to marshal event record")
				continue
			}
			fmt.Fprintf(w, "event: %s\n", rec.EventType)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"timestamp\": %q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}
