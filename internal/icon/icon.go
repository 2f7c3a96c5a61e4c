// Package icon turns a rule's icon field into a favicon URL for display.
package icon

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/inkdust2021/ringsnap/internal/rules"
)

// DefaultSize is the favicon edge length requested when none is configured.
const DefaultSize = 32

// Source builds a favicon URL for a domain.
type Source struct {
	Name string
	URL  func(domain string, size int) string
}

// Sources is the ordered favicon service list addressed by Rule.IconSourceIndex.
var Sources = []Source{
	{Name: "google", URL: func(domain string, size int) string {
		return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=%d", domain, size)
	}},
	{Name: "duckduckgo", URL: func(domain string, _ int) string {
		return fmt.Sprintf("https://icons.duckduckgo.com/ip3/%s.ico", domain)
	}},
	{Name: "direct", URL: func(domain string, _ int) string {
		return fmt.Sprintf("https://%s/favicon.ico", domain)
	}},
}

// Resolver maps rules to favicon URLs.
type Resolver struct {
	size int
}

// NewResolver creates a resolver requesting icons of the given size.
func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = DefaultSize
	}
	return &Resolver{size: size}
}

// Size returns the requested icon size.
func (r *Resolver) Size() int {
	return r.size
}

// Rule returns the favicon URL for a rule, or "" when it has no usable icon.
func (r *Resolver) Rule(rule rules.Rule) string {
	return r.URL(rule.Icon, rule.IconSourceIndex)
}

// URL resolves icon using the source at index. Values that are already URLs
// (http, https, data) are returned unchanged; an out-of-range index uses the
// first source.
func (r *Resolver) URL(icon string, index int) string {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return ""
	}
	lower := strings.ToLower(icon)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return icon
	}

	domain := Domain(icon)
	if domain == "" {
		return ""
	}
	if index < 0 || index >= len(Sources) {
		index = 0
	}
	return Sources[index].URL(url.QueryEscape(domain), r.size)
}

// Domain extracts the host name from a domain or URL-ish string such as
// "github.com", "github.com/foo" or "https://github.com:443/".
func Domain(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
