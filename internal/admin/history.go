package admin

import (
	"sync"
	"time"
	"unicode/utf8"
)

// maxHistoryInput 限制记录的输入文本长度，避免超长剪贴板内容占满内存。
const maxHistoryInput = 512

// HistoryEvent 表示一次转换（手动或通过 API 触发）的记录。
type HistoryEvent struct {
	ID   int64     `json:"id"`
	Time time.Time `json:"time"`

	// Source 标记触发来源，例如 "api"、"cli"。
	Source string `json:"source"`
	// Input 为规范化后的输入（可能被截断）。
	Input     string `json:"input"`
	Truncated bool   `json:"truncated,omitempty"`

	Matched   bool   `json:"matched"`
	RuleName  string `json:"rule_name,omitempty"`
	RuleIndex int    `json:"rule_index"`
	URL       string `json:"url,omitempty"`
	// Candidates 为 MatchAll 的候选数量（仅 all=true 时填写）。
	Candidates int `json:"candidates,omitempty"`
}

// HistoryStore keeps the most recent transform events in memory and fans them out
// to SSE subscribers.
type HistoryStore struct {
	mu     sync.RWMutex
	max    int
	nextID int64
	events []HistoryEvent

	subNext int
	subs    map[int]chan HistoryEvent
}

func NewHistoryStore(max int) *HistoryStore {
	if max <= 0 {
		max = 200
	}
	return &HistoryStore{
		max:  max,
		subs: make(map[int]chan HistoryEvent),
	}
}

func (s *HistoryStore) Add(ev HistoryEvent) HistoryEvent {
	ev.Input, ev.Truncated = truncateInput(ev.Input, maxHistoryInput)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev.ID = s.nextID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.events = append(s.events, ev)
	if len(s.events) > s.max {
		// 丢弃最旧的记录
		s.events = append([]HistoryEvent(nil), s.events[len(s.events)-s.max:]...)
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// 慢客户端：丢弃以避免阻塞转换请求
		}
	}

	return ev
}

// List returns up to limit most recent events, oldest first.
func (s *HistoryStore) List(limit int) []HistoryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	if limit == 0 {
		return nil
	}
	out := make([]HistoryEvent, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out
}

func (s *HistoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *HistoryStore) Subscribe(buf int) (ch <-chan HistoryEvent, cancel func()) {
	if buf <= 0 {
		buf = 32
	}
	c := make(chan HistoryEvent, buf)

	s.mu.Lock()
	id := s.subNext
	s.subNext++
	s.subs[id] = c
	s.mu.Unlock()

	return c, func() {
		s.mu.Lock()
		if ch2, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch2)
		}
		s.mu.Unlock()
	}
}

// truncateInput cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncateInput(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
