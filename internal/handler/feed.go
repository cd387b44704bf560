package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/infra"
)

// FeedHandler streams a session's change events to attached clients over
// server-sent events. Clients fold these into the same projection they seed
// from the snapshot endpoint; a dropped stream is recovered by re-attaching.
type FeedHandler struct {
	hub *infra.Hub
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(hub *infra.Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

const (
	feedBuffer        = 64
	heartbeatInterval = 25 * time.Second
)

// Stream handles GET /sessions/{sessionID}/feed.
func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported", nil))
		return
	}

	sub := h.hub.Subscribe(sessionID, feedBuffer)
	defer h.hub.Unsubscribe(sessionID, sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
