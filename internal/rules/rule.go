package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a regular expression to a URL template.
// Its position inside a RuleSet is its matching priority.
type Rule struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
	// URL 为目标地址模板，支持 {1}、{2}… 捕获组引用以及 {text}（完整的规范化输入）。
	URL  string `json:"url" yaml:"url"`
	Icon string `json:"icon" yaml:"icon"`
	// Enabled 为 false 的规则保留原位置，但不参与匹配。
	Enabled bool `json:"enabled" yaml:"enabled"`
	// IconSourceIndex 选择图标来源（见 internal/icon），对匹配引擎不透明。
	IconSourceIndex int `json:"iconSourceIndex" yaml:"iconSourceIndex"`
}

// ruleRecord is the on-disk shape. Pointer fields tell "missing" apart from zero values
// so that records written by older versions still get enabled=true.
type ruleRecord struct {
	Name            string  `json:"name" yaml:"name"`
	Pattern         string  `json:"pattern" yaml:"pattern"`
	URL             *string `json:"url" yaml:"url"`
	URLTemplate     *string `json:"urlTemplate" yaml:"urlTemplate"`
	Icon            string  `json:"icon" yaml:"icon"`
	Enabled         *bool   `json:"enabled" yaml:"enabled"`
	IconSourceIndex *int    `json:"iconSourceIndex" yaml:"iconSourceIndex"`
}

func (rec ruleRecord) rule() Rule {
	r := Rule{
		Name:    rec.Name,
		Pattern: rec.Pattern,
		Icon:    rec.Icon,
		Enabled: true,
	}
	switch {
	case rec.URL != nil:
		r.URL = *rec.URL
	case rec.URLTemplate != nil:
		r.URL = *rec.URLTemplate
	}
	if rec.Enabled != nil {
		r.Enabled = *rec.Enabled
	}
	if rec.IconSourceIndex != nil && *rec.IconSourceIndex > 0 {
		r.IconSourceIndex = *rec.IconSourceIndex
	}
	return r
}

// UnmarshalJSON fills enabled=true and iconSourceIndex=0 when the fields are absent.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var rec ruleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = rec.rule()
	return nil
}

// UnmarshalYAML applies the same defaults as UnmarshalJSON.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var rec ruleRecord
	if err := value.Decode(&rec); err != nil {
		return err
	}
	*r = rec.rule()
	return nil
}

// Validate checks the fields a newly added rule must have. Patterns are not
// compiled here. Rules already on disk are never rejected for failing it.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	return nil
}

// RuleSet is an ordered list of rules; order is significant.
type RuleSet []Rule

// Clone returns a copy that never aliases rs. A nil set clones to an empty one.
func (rs RuleSet) Clone() RuleSet {
	if rs == nil {
		return RuleSet{}
	}
	return slices.Clone(rs)
}

// Equal reports whether both sets hold the same rules in the same order.
func (rs RuleSet) Equal(other RuleSet) bool {
	return slices.Equal(rs, other)
}

// Append returns a new set with r added at the end.
func (rs RuleSet) Append(r Rule) RuleSet {
	out := make(RuleSet, 0, len(rs)+1)
	out = append(out, rs...)
	return append(out, r)
}

// Remove returns a new set without the rule at index i.
func (rs RuleSet) Remove(i int) (RuleSet, error) {
	if err := rs.checkIndex(i); err != nil {
		return nil, err
	}
	out := make(RuleSet, 0, len(rs)-1)
	out = append(out, rs[:i]...)
	return append(out, rs[i+1:]...), nil
}

// SetEnabled returns a new set where the rule at index i has the given enabled flag.
// The rule keeps its position.
func (rs RuleSet) SetEnabled(i int, enabled bool) (RuleSet, error) {
	if err := rs.checkIndex(i); err != nil {
		return nil, err
	}
	out := rs.Clone()
	out[i].Enabled = enabled
	return out, nil
}

// Move returns a new set with the rule at from relocated to to.
func (rs RuleSet) Move(from, to int) (RuleSet, error) {
	if err := rs.checkIndex(from); err != nil {
		return nil, err
	}
	if err := rs.checkIndex(to); err != nil {
		return nil, err
	}
	out := rs.Clone()
	r := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, r), nil
}

func (rs RuleSet) checkIndex(i int) error {
	if i < 0 || i >= len(rs) {
		return fmt.Errorf("%w: %d (have %d rules)", ErrIndexOutOfRange, i, len(rs))
	}
	return nil
}

// ErrIndexOutOfRange is returned by the RuleSet editing helpers.
var ErrIndexOutOfRange = errors.New("rule index out of range")

type document struct {
	Rules *RuleSet `json:"rules" yaml:"rules"`
}

// Decode parses the JSON rules document. A document without a "rules" key is rejected.
func Decode(data []byte) (RuleSet, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Rules == nil {
		return nil, errors.New(`missing "rules" list`)
	}
	return (*doc.Rules).Clone(), nil
}

// Encode renders rs as an indented JSON rules document.
func Encode(rs RuleSet) ([]byte, error) {
	out := rs.Clone()
	data, err := json.MarshalIndent(document{Rules: &out}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeYAML parses a YAML rules document (same shape as the JSON one).
func DecodeYAML(data []byte) (RuleSet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Rules == nil {
		return nil, errors.New(`missing "rules" list`)
	}
	return (*doc.Rules).Clone(), nil
}

// EncodeYAML renders rs as a YAML rules document.
func EncodeYAML(rs RuleSet) ([]byte, error) {
	out := rs.Clone()
	return yaml.Marshal(document{Rules: &out})
}
