package match

import (
	"strings"
)

// Expand renders a URL template.
//
// {text} becomes text and {N} (N >= 1) becomes groups[N], or "" when the group is
// absent. groups[0] is the whole match and is not addressable. Every other byte,
// including {0}, unknown tokens and an unterminated "{", is copied as is. Nothing
// is escaped.
func Expand(template, text string, groups []string) string {
	if !strings.Contains(template, "{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template) + len(text))

	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' {
			b.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			b.WriteString(template[i:])
			break
		}
		token := template[i+1 : i+1+end]

		if value, ok := lookup(token, text, groups); ok {
			b.WriteString(value)
			i += end + 2
			continue
		}

		// 不是可识别的占位符：只原样输出 "{"，后续内容继续扫描（例如 "{{1}"）。
		b.WriteByte('{')
		i++
	}
	return b.String()
}

func lookup(token, text string, groups []string) (string, bool) {
	if token == "text" {
		return text, true
	}
	if token == "" {
		return "", false
	}

	n := 0
	for i := 0; i < len(token); i++ {
		d := token[i]
		if d < '0' || d > '9' {
			return "", false
		}
		if n <= len(groups) {
			n = n*10 + int(d-'0')
		}
	}
	if n == 0 {
		return "", false
	}
	if n < len(groups) {
		return groups[n], true
	}
	return "", true
}
