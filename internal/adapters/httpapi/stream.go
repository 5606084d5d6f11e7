package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"socialcore/pkg/domain"
)

// KeepAliveInterval spaces comment frames on idle event streams.
var KeepAliveInterval = 30 * time.Second

// handleEvents streams committed changes as server-sent events. Each frame is
// named entity.action and carries the JSON change.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := make(chan domain.Change, 64)
	unsubscribe := h.Events.Subscribe(ch)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case change := <-ch:
			data, err := json.Marshal(change)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s.%s\ndata: %s\n\n", change.Entity, change.Action, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
