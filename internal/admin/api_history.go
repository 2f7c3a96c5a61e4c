package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

type HistoryResponse struct {
	MaxEvents int            `json:"max_events"`
	Events    []HistoryEvent `json:"events"`
}

// handleHistory handles GET/DELETE /manager/api/history
func (a *Admin) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := clampInt(queryInt(r, "limit", 200), 1, 500)
		writeJSON(w, http.StatusOK, HistoryResponse{
			MaxEvents: a.history.max,
			Events:    a.history.List(limit),
		})
	case http.MethodDelete:
		a.history.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHistoryStream handles GET /manager/api/history/stream?limit=200
func (a *Admin) handleHistoryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	send := func(event string, v any) {
		data, _ := json.Marshal(v)
		_, _ = w.Write([]byte("event: " + event + "\n"))
		_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	ch, cancel := a.history.Subscribe(64)
	defer cancel()

	limit := clampInt(queryInt(r, "limit", 200), 1, 500)
	send("history_init", HistoryResponse{
		MaxEvents: a.history.max,
		Events:    a.history.List(limit),
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			send("history_event", ev)
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}
