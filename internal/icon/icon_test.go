package icon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkdust2021/ringsnap/internal/rules"
)

func TestResolver_URL(t *testing.T) {
	r := NewResolver(0)
	assert.Equal(t, DefaultSize, r.Size())

	tests := []struct {
		name  string
		icon  string
		index int
		want  string
	}{
		{"google", "github.com", 0, "https://www.google.com/s2/favicons?domain=github.com&sz=32"},
		{"duckduckgo", "github.com", 1, "https://icons.duckduckgo.com/ip3/github.com.ico"},
		{"direct", "github.com", 2, "https://github.com/favicon.ico"},
		{"out of range", "github.com", 7, "https://www.google.com/s2/favicons?domain=github.com&sz=32"},
		{"negative", "github.com", -1, "https://www.google.com/s2/favicons?domain=github.com&sz=32"},
		{"domain with path", "GitHub.com/foo", 2, "https://github.com/favicon.ico"},
		{"http url passthrough", "https://example.com/logo.png", 1, "https://example.com/logo.png"},
		{"data url passthrough", "data:image/png;base64,AAAA", 0, "data:image/png;base64,AAAA"},
		{"empty", "   ", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.URL(tt.icon, tt.index))
		})
	}
}

func TestResolver_RuleUsesSize(t *testing.T) {
	r := NewResolver(64)
	got := r.Rule(rules.Rule{Icon: "pypi.org", IconSourceIndex: 0})
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=pypi.org&sz=64", got)
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "github.com", Domain("github.com"))
	assert.Equal(t, "github.com", Domain("https://github.com:443/a/b"))
	assert.Equal(t, "pkg.go.dev", Domain("  HTTP://PKG.GO.DEV  "))
	assert.Equal(t, "", Domain(""))
}
