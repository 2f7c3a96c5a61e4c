package admin

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
)

//go:embed static
var staticFS embed.FS

// Handler returns the HTTP handler for the rule editor
func (a *Admin) Handler() http.Handler {
	mux := http.NewServeMux()

	// 口令相关接口按来源 IP 限速，防止暴力尝试。
	limitAuth := httprate.LimitByIP(10, time.Minute)

	// API routes (under /manager/api/)
	mux.HandleFunc("/manager/api/auth/status", a.handleAuth("status"))
	mux.Handle("/manager/api/auth/setup", limitAuth(a.handleAuth("setup")))
	mux.Handle("/manager/api/auth/login", limitAuth(a.handleAuth("login")))
	mux.Handle("/manager/api/auth/password", limitAuth(a.handleAuth("password")))
	mux.HandleFunc("/manager/api/auth/logout", a.handleAuth("logout"))
	mux.HandleFunc("/manager/api/rules", a.handleRules)
	mux.HandleFunc("/manager/api/rules/", a.handleRulesItem)
	mux.HandleFunc("/manager/api/rules/reset", a.handleRulesReset)
	mux.HandleFunc("/manager/api/rules/validate", a.handleRulesValidate)
	mux.HandleFunc("/manager/api/rules/stream", a.handleRulesStream)
	mux.HandleFunc("/manager/api/transform", a.handleTransform)
	mux.HandleFunc("/manager/api/history", a.handleHistory)
	mux.HandleFunc("/manager/api/history/stream", a.handleHistoryStream)
	mux.HandleFunc("/manager/api/stats", a.handleStats)
	mux.HandleFunc("/manager/api/stats/stream", a.handleStatsStream)
	mux.HandleFunc("/manager/api/logs", a.handleLogs)
	mux.HandleFunc("/manager/api/logs/stream", a.handleLogsStream)
	mux.HandleFunc("/manager/api/settings", a.handleSettings)

	// Static files - serve from embedded FS
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		slog.Error("Failed to load static files", "error", err)
	}
	fileServer := http.StripPrefix("/manager", http.FileServer(http.FS(staticContent)))

	mux.Handle("/manager/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// SPA fallback - serve index.html for non-file routes
		path := strings.TrimPrefix(r.URL.Path, "/manager/")
		if path == "" || !strings.Contains(path, ".") {
			r.URL.Path = "/manager/"
		}
		fileServer.ServeHTTP(w, r)
	}))
	mux.Handle("/", http.RedirectHandler("/manager/", http.StatusFound))

	// Add logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// 所有 /manager/api/* 默认需要编辑会话（首访未设置口令则先走 setup）。
		if strings.HasPrefix(r.URL.Path, "/manager/api/") && !isManagerPublicAPI(r.Method, r.URL.Path) {
			if !a.auth.Require(w, r) {
				return
			}
		}

		mux.ServeHTTP(w, r)
		slog.Debug("Admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func isManagerPublicAPI(method, path string) bool {
	switch path {
	case "/manager/api/settings":
		return method == http.MethodGet
	case "/manager/api/auth/status",
		"/manager/api/auth/setup",
		"/manager/api/auth/login",
		"/manager/api/auth/logout":
		return true
	default:
		return false
	}
}
