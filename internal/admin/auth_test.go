package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requestWithSession(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/manager/api/rules", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: editorCookieName, Value: token})
	}
	return req
}

// fakeClock 让会话空闲超时可控。
func fakeClock(a *EditorAuth) *time.Time {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return &now
}

func mustSession(t *testing.T, a *EditorAuth) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	token, err := a.newSessionLocked()
	if err != nil {
		t.Fatalf("newSessionLocked() error: %v", err)
	}
	return token
}

func TestEditorAuth_设置口令后可登录(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor_auth.json")

	a := NewEditorAuth(path)
	if a.Configured() {
		t.Fatalf("fresh auth should need setup")
	}
	if _, err := a.Login("password123"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Login() before setup err=%v, want ErrNotConfigured", err)
	}

	for _, weak := range []string{"short", strings.Repeat("x", editorPasswordMaxLen+1)} {
		if _, err := a.Setup(weak); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Setup(%d bytes) err=%v, want ErrWeakPassword", len(weak), err)
		}
	}

	token, err := a.Setup("password123")
	if err != nil || token == "" {
		t.Fatalf("Setup() token=%q err=%v", token, err)
	}
	if _, err := a.Setup("password456"); !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("second Setup() err=%v, want ErrAlreadyConfigured", err)
	}

	if runtime.GOOS != "windows" {
		st, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error: %v", err)
		}
		if got, want := st.Mode().Perm(), os.FileMode(0o600); got != want {
			t.Fatalf("password file perms=%#o, want %#o", got, want)
		}
	}

	reloaded := NewEditorAuth(path)
	if !reloaded.Configured() {
		t.Fatalf("reloaded auth should be configured")
	}
	if _, err := reloaded.Login("wrong-password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Login(wrong) err=%v, want ErrWrongPassword", err)
	}
	if _, err := reloaded.Login("password123"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
}

func TestEditorAuth_Require区分未设置与未登录(t *testing.T) {
	a := NewEditorAuth(filepath.Join(t.TempDir(), "editor_auth.json"))

	rec := httptest.NewRecorder()
	if a.Require(rec, requestWithSession("")) || rec.Code != http.StatusForbidden {
		t.Fatalf("before setup: status=%d, want %d", rec.Code, http.StatusForbidden)
	}

	token, err := a.Setup("password123")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	rec = httptest.NewRecorder()
	if a.Require(rec, requestWithSession("")) || rec.Code != http.StatusUnauthorized {
		t.Fatalf("without cookie: status=%d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if a.Require(httptest.NewRecorder(), requestWithSession("forged")) {
		t.Fatalf("unknown token must be rejected")
	}

	req := requestWithSession(token)
	if !a.Require(httptest.NewRecorder(), req) {
		t.Fatalf("Require() should pass with the setup session")
	}
	a.Logout(req)
	if a.Require(httptest.NewRecorder(), req) {
		t.Fatalf("Require() should fail after logout")
	}
}

func TestEditorAuth_会话按使用续期(t *testing.T) {
	a := NewEditorAuth(filepath.Join(t.TempDir(), "editor_auth.json"))
	now := fakeClock(a)
	if _, err := a.Setup("password123"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	token := mustSession(t, a)

	// 每次在空闲超时之前使用都会续期
	for i := 0; i < 3; i++ {
		*now = now.Add(editorIdleTimeout - time.Minute)
		if _, authed := a.Status(requestWithSession(token)); !authed {
			t.Fatalf("session should still be live after %d touches", i)
		}
	}

	*now = now.Add(editorIdleTimeout + time.Second)
	if _, authed := a.Status(requestWithSession(token)); authed {
		t.Fatalf("idle session should expire")
	}
	if got := a.SessionCount(); got != 0 {
		t.Fatalf("SessionCount()=%d, want 0", got)
	}
}

func TestEditorAuth_会话数量有上限(t *testing.T) {
	a := NewEditorAuth(filepath.Join(t.TempDir(), "editor_auth.json"))
	now := fakeClock(a)
	if _, err := a.Setup("password123"); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	first := mustSession(t, a)
	for i := 0; i < editorMaxSessions+5; i++ {
		*now = now.Add(time.Second)
		mustSession(t, a)
	}
	if got := a.SessionCount(); got != editorMaxSessions {
		t.Fatalf("SessionCount()=%d, want %d", got, editorMaxSessions)
	}
	if _, authed := a.Status(requestWithSession(first)); authed {
		t.Fatalf("the least recently used session should be evicted")
	}
}

func TestEditorAuth_修改口令使旧会话失效(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor_auth.json")
	a := NewEditorAuth(path)
	other, err := a.Setup("password123")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	if _, err := a.ChangePassword("not-the-password", "password456"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("ChangePassword(wrong current) err=%v", err)
	}
	if _, err := a.ChangePassword("password123", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("ChangePassword(weak) err=%v", err)
	}

	mine, err := a.ChangePassword("password123", "password456")
	if err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if _, authed := a.Status(requestWithSession(other)); authed {
		t.Fatalf("sessions from before the change must be dropped")
	}
	if _, authed := a.Status(requestWithSession(mine)); !authed {
		t.Fatalf("caller should get a fresh session")
	}

	reloaded := NewEditorAuth(path)
	if _, err := reloaded.Login("password123"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("old password should no longer work: %v", err)
	}
	if _, err := reloaded.Login("password456"); err != nil {
		t.Fatalf("Login(new) error: %v", err)
	}
}

func TestEditorAuth_损坏的口令文件被移走(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor_auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	a := NewEditorAuth(path)
	if a.Configured() {
		t.Fatalf("corrupt file should put the editor back into setup")
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Fatalf("corrupt file should be kept as .corrupt: %v", err)
	}
	if _, err := a.Setup("password123"); err != nil {
		t.Fatalf("Setup() after corrupt file: %v", err)
	}
}

func TestEditorAuth_删除口令文件后回到未设置状态(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor_auth.json")
	a := NewEditorAuth(path)
	token, err := a.Setup("password123")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	configured, authed := a.Status(requestWithSession(token))
	if configured || authed {
		t.Fatalf("status after delete: configured=%v authenticated=%v", configured, authed)
	}
	if a.SessionCount() != 0 {
		t.Fatalf("sessions should be dropped with the password")
	}
}
