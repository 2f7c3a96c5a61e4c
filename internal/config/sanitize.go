package config

import (
	"strings"
	"unicode"

	"github.com/inkdust2021/ringsnap/internal/rules"
)

// SanitizeText 清理用户输入的字段值：
// - 去除前后空白
// - 移除不可见控制字符/格式字符（如 0x1F、BOM、零宽字符等）
//
// 目的：避免“看起来一样但实际不匹配”的隐形字符导致规则不生效。
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		// C0 控制字符与 DEL
		if r < 0x20 || r == 0x7f {
			continue
		}
		// 其他控制/格式字符（包含常见零宽字符、BOM 等）
		if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// SanitizeIcon 规范化图标字段：
// - 已是 URL（http/https/data）时只做基础清理
// - 否则视为域名：转小写，去掉结尾的 '/'
func SanitizeIcon(s string) string {
	s = SanitizeText(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return s
	}
	return strings.TrimRight(lower, "/")
}

// SanitizeRule cleans the display fields of r (Name, Icon). Pattern and URL are
// kept byte for byte: spaces and zero-width characters are meaningful in a regex.
func SanitizeRule(r rules.Rule) rules.Rule {
	r.Name = SanitizeText(r.Name)
	r.Icon = SanitizeIcon(r.Icon)
	if r.IconSourceIndex < 0 {
		r.IconSourceIndex = 0
	}
	return r
}
