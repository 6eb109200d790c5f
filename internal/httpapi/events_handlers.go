package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobvyne-crawler/internal/events"
)

const keepAliveEvery = 25 * time.Second

type EventsHandler struct {
	Hub *events.Hub
	// KeepAlive is the ping interval; keepAliveEvery when zero.
	KeepAlive time.Duration
}

// ServeSSE streams crawl events. ?employer= limits run events to one
// employer; cycle and ping events always pass.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "Streaming unsupported")
		return
	}
	employer := strings.TrimSpace(r.URL.Query().Get("employer"))

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	reqID := RequestIDFrom(r.Context())
	send := func(msg string) {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
		flusher.Flush()
	}
	send(events.Encode(events.TypePing, reqID, nil))

	every := h.KeepAlive
	if every <= 0 {
		every = keepAliveEvery
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			send(events.Encode(events.TypePing, reqID, nil))
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if employer != "" && !forEmployer(msg, employer) {
				continue
			}
			send(msg)
		}
	}
}

// forEmployer reports whether an encoded event concerns employer. Events
// without an employer in their payload are not run events and always match.
func forEmployer(msg, employer string) bool {
	var e events.Event
	if err := json.Unmarshal([]byte(msg), &e); err != nil || len(e.Data) == 0 {
		return true
	}
	var run struct {
		Employer string `json:"employer"`
	}
	if err := json.Unmarshal(e.Data, &run); err != nil || run.Employer == "" {
		return true
	}
	return strings.EqualFold(run.Employer, employer)
}
