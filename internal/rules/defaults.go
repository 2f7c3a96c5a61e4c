package rules

import (
	_ "embed"
	"log/slog"
)

//go:embed defaults/rules.json
var defaultRulesJSON []byte

// Defaults returns a fresh copy of the compiled-in seed rules.
func Defaults() RuleSet {
	rs, err := Decode(defaultRulesJSON)
	if err != nil {
		slog.Error("Failed to parse embedded default rules, using empty set", "error", err)
		return RuleSet{}
	}
	return rs
}

