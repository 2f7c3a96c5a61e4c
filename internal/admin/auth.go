package admin

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkdust2021/ringsnap/internal/config"
)

const (
	editorCookieName   = "RS_EDITOR_SESSION"
	editorAuthFileName = "editor_auth.json"

	// bcrypt 只使用前 72 字节，更长的口令会被 GenerateFromPassword 拒绝。
	editorPasswordMinLen = 8
	editorPasswordMaxLen = 72
)

var (
	// 编辑页通常一直开着：会话按最后一次使用续期，超过空闲时长才失效。
	editorIdleTimeout = 12 * time.Hour
	editorMaxSessions = 16
)

var (
	ErrNotConfigured     = errors.New("editor password not set")
	ErrAlreadyConfigured = errors.New("editor password already set")
	ErrWrongPassword     = errors.New("wrong password")
	ErrWeakPassword      = errors.New("password must be 8 to 72 bytes")
)

// editorPassword is the on-disk shape of editor_auth.json.
type editorPassword struct {
	Version    int    `json:"version"`
	BcryptHash string `json:"bcrypt_hash"`
	UpdatedAt  string `json:"updated_at"`
}

// EditorAuth guards the rule editor with one local password. Sessions live in
// memory only, so restarting the server signs every editor tab out.
type EditorAuth struct {
	mu       sync.Mutex
	path     string
	hash     []byte // nil 表示尚未设置口令
	modTime  time.Time
	sessions map[string]time.Time // token -> last use
	now      func() time.Time
}

func defaultAuthFilePath() string {
	return filepath.Join(config.GetConfigDir(), editorAuthFileName)
}

// NewEditorAuth loads the password file at path. A missing file means the
// editor has not been set up yet.
func NewEditorAuth(path string) *EditorAuth {
	a := &EditorAuth{
		path:     strings.TrimSpace(path),
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
	a.mu.Lock()
	a.syncLocked()
	a.mu.Unlock()
	return a
}

// syncLocked picks up external changes to the password file. A file that cannot
// be parsed is moved aside like a corrupt rules file, which puts the editor back
// into setup mode.
func (a *EditorAuth) syncLocked() {
	st, err := os.Stat(a.path)
	if err != nil {
		if a.hash != nil {
			slog.Info("Editor password file removed; setup required", "path", a.path)
			a.forgetLocked()
		}
		return
	}
	if a.hash != nil && st.ModTime().Equal(a.modTime) {
		return
	}

	hash, err := readEditorPassword(a.path)
	if err != nil {
		backup := a.path + ".corrupt"
		slog.Warn("Unreadable editor password file moved aside; setup required",
			"path", a.path, "backup", backup, "error", err)
		if rerr := os.Rename(a.path, backup); rerr != nil {
			slog.Error("Failed to move editor password file", "path", a.path, "error", rerr)
		}
		a.forgetLocked()
		return
	}
	if a.hash != nil && string(a.hash) != string(hash) {
		// 口令被外部改写：旧会话一律作废。
		clear(a.sessions)
	}
	a.hash = hash
	a.modTime = st.ModTime()
}

func (a *EditorAuth) forgetLocked() {
	a.hash = nil
	a.modTime = time.Time{}
	clear(a.sessions)
}

func readEditorPassword(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f editorPassword
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if _, err := bcrypt.Cost([]byte(f.BcryptHash)); err != nil {
		return nil, err
	}
	return []byte(f.BcryptHash), nil
}

func (a *EditorAuth) writeLocked(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(editorPassword{
		Version:    1,
		BcryptHash: string(hash),
		UpdatedAt:  a.now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return err
	}
	// WriteFile 不会收紧已存在文件的权限
	_ = os.Chmod(a.path, 0o600)

	a.hash = hash
	if st, err := os.Stat(a.path); err == nil {
		a.modTime = st.ModTime()
	}
	return nil
}

func checkPasswordStrength(password string) error {
	if n := len(password); n < editorPasswordMinLen || n > editorPasswordMaxLen {
		return ErrWeakPassword
	}
	return nil
}

// Configured reports whether an editor password has been set.
func (a *EditorAuth) Configured() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncLocked()
	return a.hash != nil
}

// Setup sets the first password and returns a session for the caller.
func (a *EditorAuth) Setup(password string) (string, error) {
	if err := checkPasswordStrength(password); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncLocked()
	if a.hash != nil {
		return "", ErrAlreadyConfigured
	}
	if err := a.writeLocked(password); err != nil {
		return "", err
	}
	return a.newSessionLocked()
}

// Login checks password and returns a new session token.
func (a *EditorAuth) Login(password string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.verifyLocked(password); err != nil {
		return "", err
	}
	return a.newSessionLocked()
}

// ChangePassword replaces the password. Every session, including the caller's,
// is dropped; the returned token is the caller's new session.
func (a *EditorAuth) ChangePassword(current, next string) (string, error) {
	if err := checkPasswordStrength(next); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.verifyLocked(current); err != nil {
		return "", err
	}
	if err := a.writeLocked(next); err != nil {
		return "", err
	}
	clear(a.sessions)
	return a.newSessionLocked()
}

func (a *EditorAuth) verifyLocked(password string) error {
	a.syncLocked()
	if a.hash == nil {
		return ErrNotConfigured
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return ErrWrongPassword
	}
	return nil
}

func (a *EditorAuth) newSessionLocked() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	now := a.now()
	a.pruneLocked(now)
	a.sessions[token] = now
	return token, nil
}

// pruneLocked 清理空闲超时的会话；仍满额时挤掉最久未使用的那个。
func (a *EditorAuth) pruneLocked(now time.Time) {
	for token, last := range a.sessions {
		if now.Sub(last) > editorIdleTimeout {
			delete(a.sessions, token)
		}
	}
	for len(a.sessions) >= editorMaxSessions {
		var stalest string
		var stalestAt time.Time
		for token, last := range a.sessions {
			if stalest == "" || last.Before(stalestAt) {
				stalest, stalestAt = token, last
			}
		}
		delete(a.sessions, stalest)
	}
}

// SessionCount returns the number of live editor sessions.
func (a *EditorAuth) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	n := 0
	for _, last := range a.sessions {
		if now.Sub(last) <= editorIdleTimeout {
			n++
		}
	}
	return n
}

// touchLocked reports whether r carries a live session and extends it.
func (a *EditorAuth) touchLocked(r *http.Request) bool {
	token := sessionToken(r)
	if token == "" {
		return false
	}
	last, ok := a.sessions[token]
	if !ok {
		return false
	}
	now := a.now()
	if now.Sub(last) > editorIdleTimeout {
		delete(a.sessions, token)
		return false
	}
	a.sessions[token] = now
	return true
}

// Status reports whether a password is set and whether r is signed in.
func (a *EditorAuth) Status(r *http.Request) (configured, authenticated bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncLocked()
	return a.hash != nil, a.hash != nil && a.touchLocked(r)
}

// Logout ends the session carried by r.
func (a *EditorAuth) Logout(r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		return
	}
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Require writes 403 while no password is set and 401 without a live session.
func (a *EditorAuth) Require(w http.ResponseWriter, r *http.Request) bool {
	configured, authenticated := a.Status(r)
	switch {
	case !configured:
		http.Error(w, "Set an editor password first", http.StatusForbidden)
		return false
	case !authenticated:
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func sessionToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(editorCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// setSessionCookie scopes the cookie to the editor; it is a browser-session
// cookie because expiry is enforced server side.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     editorCookieName,
		Value:    token,
		Path:     "/manager/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     editorCookieName,
		Path:     "/manager/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}
