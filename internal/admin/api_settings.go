package admin

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkdust2021/ringsnap/internal/config"
)

type SettingsResponse struct {
	Lang            string `json:"lang"`
	CaseInsensitive bool   `json:"case_insensitive"`
	IconSize        int    `json:"icon_size"`
	RulesFile       string `json:"rules_file"`
	WatchRules      bool   `json:"watch_rules"`
}

func normalizeLang(lang string) string {
	v := strings.ToLower(strings.TrimSpace(lang))
	switch v {
	case "zh", "zh-cn", "zh_cn", "cn", "中文", "chinese":
		return "zh"
	case "en", "en-us", "en_us", "english":
		return "en"
	default:
		if strings.HasPrefix(v, "zh") || strings.Contains(v, "zh") {
			return "zh"
		}
		if strings.HasPrefix(v, "en") || strings.Contains(v, "en") {
			return "en"
		}
		return ""
	}
}

func (a *Admin) preferredLangFromFile() string {
	langPath := filepath.Join(config.GetConfigDir(), "lang")
	b, err := os.ReadFile(langPath)
	if err != nil {
		return ""
	}
	return normalizeLang(string(b))
}

func preferredLangFromRequest(r *http.Request) string {
	al := strings.ToLower(r.Header.Get("Accept-Language"))
	if strings.Contains(al, "zh") {
		return "zh"
	}
	if strings.Contains(al, "en") {
		return "en"
	}
	return ""
}

func (a *Admin) preferredUILang(r *http.Request) string {
	if v := a.preferredLangFromFile(); v != "" {
		return v
	}
	if v := normalizeLang(os.Getenv("RINGSNAP_LANG")); v != "" {
		return v
	}
	if v := preferredLangFromRequest(r); v != "" {
		return v
	}
	return "zh"
}

func (a *Admin) settingsResponse(r *http.Request) SettingsResponse {
	c := a.config.Get()
	return SettingsResponse{
		Lang:            a.preferredUILang(r),
		CaseInsensitive: c.Match.CaseInsensitive,
		IconSize:        c.Icons.Size,
		RulesFile:       a.store.Path(),
		WatchRules:      c.Rules.Watch,
	}
}

// handleSettings handles GET/PUT /manager/api/settings
// GET 不需要登录（登录页需要知道界面语言）；PUT 在 handler 中单独鉴权。
func (a *Admin) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.settingsResponse(r))
	case http.MethodPut:
		a.updateSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Admin) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseInsensitive *bool `json:"case_insensitive"`
		IconSize        *int  `json:"icon_size"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := a.config.Update(func(c *config.Config) {
		if req.CaseInsensitive != nil {
			c.Match.CaseInsensitive = *req.CaseInsensitive
		}
		if req.IconSize != nil {
			c.Icons.Size = *req.IconSize
		}
	})
	if err != nil {
		slog.Error("Failed to save settings", "path", a.config.Path(), "error", err)
		http.Error(w, "Failed to save: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// 不依赖配置文件监听：直接把新设置应用到运行中的引擎。
	if fn := a.onSettings; fn != nil {
		fn()
	} else {
		a.SetIconSize(a.config.Get().Icons.Size)
	}
	writeJSON(w, http.StatusOK, a.settingsResponse(r))
}
