package admin

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/icon"
	"github.com/inkdust2021/ringsnap/internal/rules"
	"github.com/inkdust2021/ringsnap/internal/transform"
)

// StatsCollector tracks transform and rule-edit statistics
type StatsCollector struct {
	Transforms atomic.Int64
	Matched    atomic.Int64
	NoMatch    atomic.Int64
	RuleSaves  atomic.Int64
	Errors     atomic.Int64
}

// Admin handles the rule-editing HTTP endpoints
type Admin struct {
	config  *config.Manager
	store   *rules.Store
	service *transform.Service
	auth    *EditorAuth
	stats   *StatsCollector
	started atomic.Int64 // Unix timestamp
	history *HistoryStore
	icons   atomic.Pointer[icon.Resolver]

	// editMu 串行化“读快照 → 修改 → Save”，避免并发编辑互相覆盖。
	editMu sync.Mutex

	onSettings func()
}

// New creates a new Admin handler. An empty authPath uses editor_auth.json in the
// config directory.
func New(cfg *config.Manager, store *rules.Store, svc *transform.Service, authPath string) *Admin {
	if strings.TrimSpace(authPath) == "" {
		authPath = defaultAuthFilePath()
	}
	a := &Admin{
		config:  cfg,
		store:   store,
		service: svc,
		auth:    NewEditorAuth(authPath),
		stats:   &StatsCollector{},
		history: NewHistoryStore(200),
	}
	a.started.Store(0)
	a.SetIconSize(cfg.Get().Icons.Size)
	return a
}

// GetStats returns the stats collector for external incrementing
func (a *Admin) GetStats() *StatsCollector {
	return a.stats
}

// SetStartTime records when the server started
func (a *Admin) SetStartTime(unix int64) {
	a.started.Store(unix)
}

// OnSettingsChange registers fn to run after settings are saved through the API.
// Must be called before the handler starts serving.
func (a *Admin) OnSettingsChange(fn func()) {
	a.onSettings = fn
}

// SetIconSize rebuilds the favicon resolver (config reload).
func (a *Admin) SetIconSize(size int) {
	a.icons.Store(icon.NewResolver(size))
}

// RecordTransform 记录一次转换结果，供管理页“最近转换”面板展示。
// 仅保存在内存中，不落盘。
func (a *Admin) RecordTransform(ev HistoryEvent) HistoryEvent {
	if a == nil || a.history == nil {
		return ev
	}
	a.stats.Transforms.Add(1)
	if ev.Matched {
		a.stats.Matched.Add(1)
	} else {
		a.stats.NoMatch.Add(1)
	}
	return a.history.Add(ev)
}
