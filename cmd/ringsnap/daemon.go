package main

import (
	"path/filepath"
	"strings"
)

// detachedArgs builds the argv for the background "serve" child.
func detachedArgs(cfgPath string) []string {
	args := []string{"serve", "--detached"}
	if p := strings.TrimSpace(cfgPath); p != "" {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		args = append(args, "--config", p)
	}
	return args
}
