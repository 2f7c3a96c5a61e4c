package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatsResponse represents the stats API response
type StatsResponse struct {
	Server struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		ListenAddress string `json:"listen_address"`
		// EditorSessions 为当前有效的编辑会话数。
		EditorSessions int `json:"editor_sessions"`
	} `json:"server"`
	Rules struct {
		Path     string `json:"path"`
		Total    int    `json:"total"`
		Enabled  int    `json:"enabled"`
		Invalid  int    `json:"invalid"`
		Watching bool   `json:"watching"`
	} `json:"rules"`
	Transforms struct {
		Total     int64 `json:"total"`
		Matched   int64 `json:"matched"`
		NoMatch   int64 `json:"no_match"`
		RuleSaves int64 `json:"rule_saves"`
		Errors    int64 `json:"errors"`
	} `json:"transforms"`
}

func (a *Admin) buildStats() StatsResponse {
	c := a.config.Get()

	resp := StatsResponse{}
	resp.Server.Status = "running"
	resp.Server.ListenAddress = c.Server.Listen
	resp.Server.EditorSessions = a.auth.SessionCount()

	startTime := a.started.Load()
	if startTime > 0 {
		resp.Server.UptimeSeconds = time.Now().Unix() - startTime
	}

	rs := a.store.Snapshot()
	engine := a.service.Engine()
	resp.Rules.Path = a.store.Path()
	resp.Rules.Total = len(rs)
	resp.Rules.Watching = c.Rules.Watch
	for _, r := range rs {
		if r.Enabled {
			resp.Rules.Enabled++
		}
		if _, err := engine.Compile(r.Pattern); err != nil {
			resp.Rules.Invalid++
		}
	}

	resp.Transforms.Total = a.stats.Transforms.Load()
	resp.Transforms.Matched = a.stats.Matched.Load()
	resp.Transforms.NoMatch = a.stats.NoMatch.Load()
	resp.Transforms.RuleSaves = a.stats.RuleSaves.Load()
	resp.Transforms.Errors = a.stats.Errors.Load()
	return resp
}

// handleStats returns current statistics
func (a *Admin) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.buildStats())
}

// handleStatsStream returns SSE stream of stats
func (a *Admin) handleStatsStream(w http.ResponseWriter, r *http.Request) {
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

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			data, _ := json.Marshal(a.buildStats())
			w.Write([]byte("event: stats\ndata: " + string(data) + "\n\n"))
			flusher.Flush()
		}
	}
}
