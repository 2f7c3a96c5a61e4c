package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/rules"
	"github.com/inkdust2021/ringsnap/internal/transform"
)

type testEnv struct {
	admin   *Admin
	store   *rules.Store
	cfg     *config.Manager
	handler http.Handler
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RINGSNAP_CONFIG", filepath.Join(dir, "config.yaml"))

	cfg := config.NewManager()
	require.NoError(t, cfg.Load())

	store := rules.NewStore(filepath.Join(dir, "rules.json"))
	store.Load()
	t.Cleanup(func() { _ = store.Close() })

	a := New(cfg, store, transform.New(store, nil), filepath.Join(dir, "editor_auth.json"))
	return &testEnv{admin: a, store: store, cfg: cfg, handler: a.Handler()}
}

// login 完成首次 setup 并保存会话 cookie。
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/manager/api/auth/setup", `{"password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == editorCookieName {
			e.cookie = c
		}
	}
	require.NotNil(t, e.cookie, "setup should set the session cookie")
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return e.doReq(t, httptest.NewRequest(method, path, r))
}

func (e *testEnv) doReq(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "192.0.2.10:40000"
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandler_RequiresSetupThenSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/manager/api/rules", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 公开接口不需要登录
	rec = e.do(t, http.MethodGet, "/manager/api/auth/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[AuthStatusResponse](t, rec)
	assert.False(t, st.Configured)

	e.login(t)
	rec = e.do(t, http.MethodGet, "/manager/api/auth/status", "")
	st = decodeBody[AuthStatusResponse](t, rec)
	assert.True(t, st.Configured)
	assert.True(t, st.Authenticated)

	cookie := e.cookie
	e.cookie = nil
	rec = e.do(t, http.MethodGet, "/manager/api/rules", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	e.cookie = cookie
	rec = e.do(t, http.MethodPost, "/manager/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodGet, "/manager/api/rules", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_ChangePasswordSignsOutOtherSessions(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	oldCookie := e.cookie

	rec := e.do(t, http.MethodPost, "/manager/api/auth/password", `{"current":"wrong-password","password":"password456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/manager/api/auth/password", `{"current":"password123","password":"password456"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == editorCookieName {
			fresh = c
		}
	}
	require.NotNil(t, fresh)

	e.cookie = oldCookie
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/manager/api/rules", "").Code)
	e.cookie = fresh
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/manager/api/rules", "").Code)

	// 没有会话时不能改口令
	e.cookie = nil
	rec = e.do(t, http.MethodPost, "/manager/api/auth/password", `{"current":"password456","password":"password789"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/manager/api/auth/setup", `{"password":"password789"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_LoginIsRateLimited(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	e.cookie = nil

	var limited bool
	for i := 0; i < 15; i++ {
		rec := e.do(t, http.MethodPost, "/manager/api/auth/login", `{"password":"wrong-password"}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.True(t, limited, "repeated logins from one IP should be throttled")
}

func TestHandler_ListRules(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	rec := e.do(t, http.MethodGet, "/manager/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	resp := decodeBody[RulesResponse](t, rec)
	assert.Equal(t, e.store.Path(), resp.Path)
	require.Len(t, resp.Rules, len(rules.Defaults()))
	assert.Equal(t, "GitHub", resp.Rules[0].Name)
	assert.Contains(t, resp.Rules[0].IconURL, "github.com")
}

func TestHandler_ReplaceRulesWithGzipBody(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	doc := `{"rules":[
		{"name":"Issue","pattern":"#(\\d+)","url":"https://tracker.example/{1}"},
		{"name":"Broken","pattern":"(unclosed","url":"https://example.com"}
	]}`
	req := httptest.NewRequest(http.MethodPut, "/manager/api/rules", bytes.NewReader(mustGzip(t, []byte(doc))))
	req.Header.Set("Content-Encoding", "gzip")
	rec := e.doReq(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[struct {
		Count    int           `json:"count"`
		Problems []RuleProblem `json:"problems"`
	}](t, rec)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Problems, 1)
	assert.Equal(t, 1, resp.Problems[0].Index)

	got := e.store.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "Issue", got[0].Name)
	assert.True(t, got[0].Enabled, "missing enabled should default to true")

	res := e.admin.service.Transform("see #42")
	assert.True(t, res.Matched)
	assert.Equal(t, "https://tracker.example/42", res.URL)
}

func TestHandler_ReplaceRulesKeepsPatternsVerbatim(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	doc := `{"rules":[
		{"name":"","pattern":"^todo ","url":"https://todo.example/{text}"},
		{"name":" Spaced ","pattern":" (\\d+)$","url":" https://n.example/{1}"}
	]}`
	rec := e.do(t, http.MethodPut, "/manager/api/rules", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[struct {
		Problems []RuleProblem `json:"problems"`
	}](t, rec)
	require.Len(t, resp.Problems, 1, "unnamed rule is stored but reported")
	assert.Equal(t, 0, resp.Problems[0].Index)

	got := e.store.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "^todo ", got[0].Pattern)
	assert.Equal(t, " (\\d+)$", got[1].Pattern)
	assert.Equal(t, " https://n.example/{1}", got[1].URL)
	assert.Equal(t, "Spaced", got[1].Name)

	// GET 的结果原样 PUT 回去不改变任何内容。
	rec = e.do(t, http.MethodGet, "/manager/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[RulesResponse](t, rec)
	rs := make(rules.RuleSet, 0, len(listed.Rules))
	for _, v := range listed.Rules {
		rs = append(rs, v.Rule)
	}
	body, err := rules.Encode(rs)
	require.NoError(t, err)
	rec = e.do(t, http.MethodPut, "/manager/api/rules", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, got, e.store.Snapshot())

	rec = e.do(t, http.MethodPatch, "/manager/api/rules/1", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, e.store.Snapshot()[1].Enabled)
}

func TestHandler_ReplaceRulesRejectsBadDocument(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	rec := e.do(t, http.MethodPut, "/manager/api/rules", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, e.store.Snapshot(), len(rules.Defaults()), "store must be untouched")
}

func TestHandler_AppendRule(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	rec := e.do(t, http.MethodPost, "/manager/api/rules", `{"name":"Bad","pattern":"(","url":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/manager/api/rules", `{"name":"  ","pattern":"x","url":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/manager/api/rules", `{"name":"Jira","pattern":"([A-Z]+-\\d+)","url":"https://jira.example/browse/{1}","icon":"jira.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := e.store.Snapshot()
	n := len(rules.Defaults())
	require.Len(t, got, n+1)
	assert.Equal(t, "Jira", got[n].Name)
	assert.Equal(t, int64(1), e.admin.stats.RuleSaves.Load())
}

func TestHandler_PatchAndDeleteRule(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	rec := e.do(t, http.MethodPatch, "/manager/api/rules/0", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, e.store.Snapshot()[0].Enabled)

	second := e.store.Snapshot()[1].Name
	rec = e.do(t, http.MethodPatch, "/manager/api/rules/1", `{"position":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, second, e.store.Snapshot()[0].Name)

	rec = e.do(t, http.MethodPatch, "/manager/api/rules/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPatch, "/manager/api/rules/99", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodDelete, "/manager/api/rules/0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, e.store.Snapshot(), len(rules.Defaults())-1)

	rec = e.do(t, http.MethodDelete, "/manager/api/rules/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ResetRules(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	require.NoError(t, e.store.Save(rules.RuleSet{{Name: "Only", Pattern: "x", URL: "y", Enabled: true}}))

	rec := e.do(t, http.MethodPost, "/manager/api/rules/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rules.Defaults(), e.store.Snapshot())

	rec = e.do(t, http.MethodGet, "/manager/api/rules/reset", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_ValidatePattern(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)

	rec := e.do(t, http.MethodPost, "/manager/api/rules/validate", `{"pattern":"("}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ValidateResponse](t, rec)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)

	rec = e.do(t, http.MethodPost, "/manager/api/rules/validate",
		`{"pattern":"npm install (\\S+)","template":"https://www.npmjs.com/package/{1}","text":"  npm install left-pad\n"}`)
	resp = decodeBody[ValidateResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.True(t, resp.Matched)
	assert.Equal(t, "https://www.npmjs.com/package/left-pad", resp.URL)
}

func TestHandler_TransformRecordsHistoryAndStats(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	require.NoError(t, e.store.Save(rules.RuleSet{
		{Name: "GitHub", Pattern: `github\.com/([\w.-]+)/([\w.-]+)`, URL: "https://github.com/{1}/{2}", Icon: "github.com", Enabled: true},
		{Name: "Search", Pattern: `.*`, URL: "https://www.google.com/search?q={text}", Enabled: true},
	}))

	rec := e.do(t, http.MethodPost, "/manager/api/transform", `{"text":"check out github.com/foo/bar today"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[TransformResponse](t, rec)
	assert.True(t, resp.Result.Matched)
	assert.Equal(t, "GitHub", resp.Result.RuleName)
	assert.Equal(t, "https://github.com/foo/bar", resp.Result.URL)
	assert.NotEmpty(t, resp.Result.IconURL)
	assert.Empty(t, resp.Results)

	rec = e.do(t, http.MethodPost, "/manager/api/transform", `{"text":"github.com/a/b","all":true}`)
	resp = decodeBody[TransformResponse](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 0, resp.Results[0].RuleIndex)
	assert.Equal(t, 1, resp.Results[1].RuleIndex)

	rec = e.do(t, http.MethodGet, "/manager/api/history?limit=10", "")
	hist := decodeBody[HistoryResponse](t, rec)
	require.Len(t, hist.Events, 2)
	assert.Equal(t, "api", hist.Events[0].Source)
	assert.Equal(t, 2, hist.Events[1].Candidates)

	rec = e.do(t, http.MethodGet, "/manager/api/stats", "")
	stats := decodeBody[StatsResponse](t, rec)
	assert.Equal(t, int64(2), stats.Transforms.Total)
	assert.Equal(t, int64(2), stats.Transforms.Matched)
	assert.Equal(t, 2, stats.Rules.Total)
	assert.Equal(t, 2, stats.Rules.Enabled)
	assert.Equal(t, 0, stats.Rules.Invalid)
	assert.Equal(t, 1, stats.Server.EditorSessions)

	rec = e.do(t, http.MethodDelete, "/manager/api/history", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, e.admin.history.List(10))
}

func TestHandler_TransformNoMatch(t *testing.T) {
	e := newTestEnv(t)
	e.login(t)
	require.NoError(t, e.store.Save(rules.RuleSet{}))

	rec := e.do(t, http.MethodPost, "/manager/api/transform", `{"text":"anything"}`)
	resp := decodeBody[TransformResponse](t, rec)
	assert.False(t, resp.Result.Matched)
	assert.Equal(t, -1, resp.Result.RuleIndex)
	assert.Equal(t, int64(1), e.admin.stats.NoMatch.Load())
}

func TestHandler_Settings(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("RINGSNAP_LANG", "en")

	rec := e.do(t, http.MethodGet, "/manager/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code, "GET settings is public")
	resp := decodeBody[SettingsResponse](t, rec)
	assert.False(t, resp.CaseInsensitive)
	assert.Equal(t, config.Default().Icons.Size, resp.IconSize)

	rec = e.do(t, http.MethodPut, "/manager/api/settings", `{"case_insensitive":true}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "PUT settings requires auth")

	var applied atomic.Int32
	e.admin.OnSettingsChange(func() { applied.Add(1) })
	e.login(t)

	rec = e.do(t, http.MethodPut, "/manager/api/settings", `{"case_insensitive":true,"icon_size":64}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decodeBody[SettingsResponse](t, rec)
	assert.True(t, resp.CaseInsensitive)
	assert.Equal(t, 64, resp.IconSize)
	assert.True(t, e.cfg.Get().Match.CaseInsensitive)
	assert.Equal(t, int32(1), applied.Load())
}

func TestHandler_StaticFallback(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/manager/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>RingSnap</title>")

	rec = e.do(t, http.MethodGet, "/manager/rules", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestIsManagerPublicAPI(t *testing.T) {
	assert.True(t, isManagerPublicAPI(http.MethodGet, "/manager/api/settings"))
	assert.False(t, isManagerPublicAPI(http.MethodPut, "/manager/api/settings"))
	assert.True(t, isManagerPublicAPI(http.MethodPost, "/manager/api/auth/login"))
	assert.False(t, isManagerPublicAPI(http.MethodPost, "/manager/api/auth/password"))
	assert.False(t, isManagerPublicAPI(http.MethodGet, "/manager/api/rules"))
}
