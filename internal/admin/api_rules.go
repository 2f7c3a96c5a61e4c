package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/normalize"
	"github.com/inkdust2021/ringsnap/internal/rules"
)

// RuleView is a rule as shown to the editor, decorated with its favicon URL.
type RuleView struct {
	rules.Rule
	IconURL string `json:"icon_url,omitempty"`
}

// RulesResponse represents the rules API response
type RulesResponse struct {
	Path  string     `json:"path"`
	Rules []RuleView `json:"rules"`
}

// RuleProblem reports a stored rule that is kept but needs attention: its pattern
// does not compile or it has no name.
type RuleProblem struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// handleRules handles GET/PUT/POST /manager/api/rules
func (a *Admin) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.rulesResponse(a.store.Snapshot()))
	case http.MethodPut:
		a.replaceRules(w, r)
	case http.MethodPost:
		a.appendRule(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRulesItem handles PATCH/DELETE /manager/api/rules/{index}
func (a *Admin) handleRulesItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/manager/api/rules/")
	index, err := strconv.Atoi(strings.Trim(path, "/"))
	if err != nil {
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		a.patchRule(w, r, index)
	case http.MethodDelete:
		if _, err := a.applyEdit(func(rs rules.RuleSet) (rules.RuleSet, error) {
			return rs.Remove(index)
		}); err != nil {
			a.writeSaveError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Admin) rulesResponse(rs rules.RuleSet) RulesResponse {
	resolver := a.icons.Load()
	views := make([]RuleView, 0, len(rs))
	for _, rule := range rs {
		views = append(views, RuleView{Rule: rule, IconURL: resolver.Rule(rule)})
	}
	return RulesResponse{Path: a.store.Path(), Rules: views}
}

func (a *Admin) replaceRules(w http.ResponseWriter, r *http.Request) {
	body, err := readRequestBody(r, maxRequestBody)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	rs, err := rules.Decode(body)
	if err != nil {
		http.Error(w, "Invalid rules document: "+err.Error(), http.StatusBadRequest)
		return
	}
	for i := range rs {
		rs[i] = config.SanitizeRule(rs[i])
	}

	if _, err := a.applyEdit(func(rules.RuleSet) (rules.RuleSet, error) {
		return rs, nil
	}); err != nil {
		a.writeSaveError(w, err)
		return
	}

	// 整体替换允许暂存无效正则（匹配时会被跳过），但要把问题告诉编辑端。
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"count":    len(rs),
		"problems": a.ruleProblems(rs),
	})
}

func (a *Admin) appendRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	rule = config.SanitizeRule(rule)
	if err := rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.service.Engine().Check(rule.Pattern); err != nil {
		http.Error(w, "Invalid pattern: "+err.Error(), http.StatusBadRequest)
		return
	}

	var index int
	if _, err := a.applyEdit(func(rs rules.RuleSet) (rules.RuleSet, error) {
		index = len(rs)
		return rs.Append(rule), nil
	}); err != nil {
		a.writeSaveError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "created",
		"index":  index,
		"rule":   RuleView{Rule: rule, IconURL: a.icons.Load().Rule(rule)},
	})
}

func (a *Admin) patchRule(w http.ResponseWriter, r *http.Request, index int) {
	var req struct {
		Enabled  *bool `json:"enabled"`
		Position *int  `json:"position"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil && req.Position == nil {
		http.Error(w, "enabled or position is required", http.StatusBadRequest)
		return
	}

	next, err := a.applyEdit(func(rs rules.RuleSet) (rules.RuleSet, error) {
		var err error
		if req.Enabled != nil {
			if rs, err = rs.SetEnabled(index, *req.Enabled); err != nil {
				return nil, err
			}
		}
		if req.Position != nil {
			if rs, err = rs.Move(index, *req.Position); err != nil {
				return nil, err
			}
		}
		return rs, nil
	})
	if err != nil {
		a.writeSaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.rulesResponse(next))
}

// applyEdit applies fn to the current snapshot and saves the result.
func (a *Admin) applyEdit(fn func(rules.RuleSet) (rules.RuleSet, error)) (rules.RuleSet, error) {
	a.editMu.Lock()
	defer a.editMu.Unlock()

	next, err := fn(a.store.Snapshot())
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(next); err != nil {
		return nil, err
	}
	a.stats.RuleSaves.Add(1)
	return next, nil
}

func (a *Admin) writeSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrIndexOutOfRange):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		a.stats.Errors.Add(1)
		slog.Error("Failed to save rules", "path", a.store.Path(), "error", err)
		http.Error(w, "Failed to save: "+err.Error(), http.StatusInternalServerError)
	}
}

func (a *Admin) ruleProblems(rs rules.RuleSet) []RuleProblem {
	engine := a.service.Engine()
	out := []RuleProblem{}
	for i, rule := range rs {
		if _, err := engine.Compile(rule.Pattern); err != nil {
			out = append(out, RuleProblem{Index: i, Name: rule.Name, Error: err.Error()})
		} else if err := rule.Validate(); err != nil {
			out = append(out, RuleProblem{Index: i, Name: rule.Name, Error: err.Error()})
		}
	}
	return out
}

// handleRulesReset handles POST /manager/api/rules/reset
func (a *Admin) handleRulesReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next, err := a.applyEdit(func(rules.RuleSet) (rules.RuleSet, error) {
		return rules.Defaults(), nil
	})
	if err != nil {
		a.writeSaveError(w, err)
		return
	}
	slog.Info("Rules reset to defaults", "path", a.store.Path())
	writeJSON(w, http.StatusOK, a.rulesResponse(next))
}

// ValidateResponse is returned by POST /manager/api/rules/validate.
type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Matched bool   `json:"matched"`
	URL     string `json:"url,omitempty"`
}

// handleRulesValidate handles POST /manager/api/rules/validate
// 供编辑器实时校验正则；若同时给出 template 与 text，则顺带返回试运行结果。
func (a *Admin) handleRulesValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Pattern  string `json:"pattern"`
		Template string `json:"template"`
		Text     string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	// 编辑器每次按键都会调用：试算用一次性引擎，不写入共享引擎的编译缓存。
	resp := ValidateResponse{Valid: true}
	engine := a.service.Engine()
	if err := engine.Check(req.Pattern); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if req.Text != "" {
		trial := match.New(match.Options{CaseInsensitive: engine.CaseInsensitive()})
		res := trial.Match([]rules.Rule{{Name: "validate", Pattern: req.Pattern, URL: req.Template, Enabled: true}}, normalize.Text(req.Text))
		resp.Matched = res.Matched
		resp.URL = res.URL
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRulesStream handles GET /manager/api/rules/stream
func (a *Admin) handleRulesStream(w http.ResponseWriter, r *http.Request) {
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

	// 先订阅再发送初始快照，避免两者之间的变更丢失。
	ch, cancel := a.store.Subscribe(1)
	defer cancel()

	send("rules_init", a.rulesResponse(a.store.Snapshot()))

	// 心跳：避免中间代理/浏览器断开长连接
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			send("rules_changed", a.rulesResponse(a.store.Snapshot()))
		case <-ticker.C:
			// SSE comment line as heartbeat
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}
