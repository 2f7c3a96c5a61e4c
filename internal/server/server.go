package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inkdust2021/ringsnap/internal/admin"
	"github.com/inkdust2021/ringsnap/internal/config"
	rslog "github.com/inkdust2021/ringsnap/internal/log"
	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/rules"
	"github.com/inkdust2021/ringsnap/internal/transform"
)

// Server hosts the rule editor and keeps the runtime engine in sync with the config.
type Server struct {
	config     *config.Manager
	store      *rules.Store
	service    *transform.Service
	admin      *admin.Admin
	listenAddr string
	// rulesFixed 表示规则路径由调用方显式指定，不随配置变化。
	rulesFixed bool
	http       *http.Server
}

// Options tweaks NewServer; zero values use the config.
type Options struct {
	// AuthPath overrides the editor_auth.json location.
	AuthPath string
	// RulesPath overrides config.Manager.RulesPath.
	RulesPath string
}

// NewServer creates a new server. The rule set is loaded immediately so that the
// first request never sees an empty store.
func NewServer(cfg *config.Manager, opts Options) *Server {
	c := cfg.Get()

	rulesPath := strings.TrimSpace(opts.RulesPath)
	if rulesPath == "" {
		rulesPath = cfg.RulesPath()
	}
	store := rules.NewStore(rulesPath)
	rs := store.Load()

	svc := transform.New(store, nil)
	adm := admin.New(cfg, store, svc, opts.AuthPath)

	s := &Server{
		config:     cfg,
		store:      store,
		service:    svc,
		admin:      adm,
		listenAddr: c.Server.Listen,
		rulesFixed: strings.TrimSpace(opts.RulesPath) != "",
	}
	s.applyConfig(c)
	adm.OnSettingsChange(s.ReloadFromConfig)
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Rules loaded", "path", rulesPath, "count", len(rs))
	return s
}

// Store returns the rule store backing the server.
func (s *Server) Store() *rules.Store { return s.store }

// Service returns the transformation service.
func (s *Server) Service() *transform.Service { return s.service }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	adminHandler := s.admin.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/manager" {
			http.Redirect(w, r, "/manager/", http.StatusMovedPermanently)
			return
		}
		if r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		adminHandler.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and blocks until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called. It also starts the rules and config
// watchers according to the config.
func (s *Server) Serve(ln net.Listener) error {
	s.admin.SetStartTime(time.Now().Unix())

	if s.config.Get().Rules.Watch {
		if err := s.store.Watch(); err != nil {
			slog.Warn("Failed to watch rules file", "path", s.store.Path(), "error", err)
		}
	}

	addr := ln.Addr().String()
	slog.Info("Starting RingSnap", "address", addr, "manager", "http://"+addr+"/manager/")
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down and releases the watchers.
func (s *Server) Stop(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	slog.Info("RingSnap stopped")
	return err
}

func (s *Server) applyConfig(c config.Config) {
	s.service.SetEngine(match.New(match.Options{
		CaseInsensitive: c.Match.CaseInsensitive,
		Logger:          slog.Default(),
	}))
	s.admin.SetIconSize(c.Icons.Size)
	if c.Log.Level != "" {
		rslog.SetLevel(c.Log.Level)
	}
}

// ReloadFromConfig 在不重启服务的情况下应用新配置（匹配选项、图标尺寸、日志级别）。
// 注意：listen 地址与规则文件路径需要重启才能生效。
func (s *Server) ReloadFromConfig() {
	c := s.config.Get()
	if strings.TrimSpace(c.Server.Listen) != "" && strings.TrimSpace(c.Server.Listen) != strings.TrimSpace(s.listenAddr) {
		slog.Warn("Config reloaded but listen address cannot be hot-updated; restart required",
			"current", s.listenAddr, "configured", c.Server.Listen)
	}
	if p := s.config.RulesPath(); !s.rulesFixed && p != s.store.Path() {
		slog.Warn("Config reloaded but rules file cannot be hot-updated; restart required",
			"current", s.store.Path(), "configured", p)
	}

	s.applyConfig(c)
	slog.Info("Config reloaded",
		"case_insensitive", c.Match.CaseInsensitive,
		"icon_size", c.Icons.Size,
		"log_level", c.Log.Level,
	)
}
