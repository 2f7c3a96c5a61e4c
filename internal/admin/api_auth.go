package admin

import (
	"errors"
	"log/slog"
	"net/http"
)

// AuthStatusResponse tells the editor whether to show setup, login or the rules.
type AuthStatusResponse struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}

type authRequest struct {
	Password string `json:"password"`
	Current  string `json:"current"`
}

// handleAuth serves /manager/api/auth/{status,setup,login,logout,password}.
func (a *Admin) handleAuth(action string) http.HandlerFunc {
	method := http.MethodPost
	if action == "status" {
		method = http.MethodGet
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		switch action {
		case "status":
			configured, authed := a.auth.Status(r)
			writeJSON(w, http.StatusOK, AuthStatusResponse{Configured: configured, Authenticated: authed})
			return
		case "logout":
			a.auth.Logout(r)
			clearSessionCookie(w)
			writeOK(w)
			return
		}

		var req authRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var token string
		var err error
		switch action {
		case "setup":
			token, err = a.auth.Setup(req.Password)
			if err == nil {
				slog.Info("Editor password set")
			}
		case "login":
			token, err = a.auth.Login(req.Password)
			if errors.Is(err, ErrWrongPassword) {
				slog.Warn("Editor login failed", "remote", r.RemoteAddr)
			}
		case "password":
			token, err = a.auth.ChangePassword(req.Current, req.Password)
			if err == nil {
				slog.Info("Editor password changed; other sessions signed out")
			}
		}
		if err != nil {
			writeAuthError(w, err)
			return
		}
		setSessionCookie(w, token)
		writeOK(w)
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWrongPassword):
		http.Error(w, "Invalid password", http.StatusUnauthorized)
	case errors.Is(err, ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyConfigured):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Editor auth failed", "error", err)
		http.Error(w, "Failed to update editor password", http.StatusInternalServerError)
	}
}
