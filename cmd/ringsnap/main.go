package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/log"
	"github.com/inkdust2021/ringsnap/internal/version"
)

var cfgFile string

func uiLang() string {
	if v := strings.TrimSpace(os.Getenv("RINGSNAP_LANG")); v != "" {
		if isLangZh(v) {
			return "zh"
		}
		return "en"
	}

	loc := strings.TrimSpace(os.Getenv("LC_ALL"))
	if loc == "" {
		loc = strings.TrimSpace(os.Getenv("LANG"))
	}
	if isLangZh(loc) {
		return "zh"
	}
	return "en"
}

func isLangZh(v string) bool {
	v = strings.TrimSpace(v)
	switch v {
	case "中文", "cn":
		return true
	}
	return strings.Contains(strings.ToLower(v), "zh")
}

func uiText(lang, zh, en string) string {
	if lang == "zh" {
		return zh
	}
	return en
}

func uiIsYes(lang, s string) bool {
	s = strings.TrimSpace(s)
	sLower := strings.ToLower(s)
	if sLower == "y" || sLower == "yes" {
		return true
	}
	if lang == "zh" {
		switch s {
		case "是", "好", "确认", "继续", "覆盖":
			return true
		}
	}
	return false
}

func uiIsNo(lang, s string) bool {
	s = strings.TrimSpace(s)
	sLower := strings.ToLower(s)
	if sLower == "n" || sLower == "no" {
		return true
	}
	if lang == "zh" {
		switch s {
		case "否", "不", "不要", "跳过":
			return true
		}
	}
	return false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ringsnap",
	Short: "Turn snippets of text into URLs with ordered regex rules",
	Long: `RingSnap converts captured text (usually the clipboard) into a URL.

Each rule pairs a regular expression with a URL template such as
https://github.com/{1}/{2}. Rules are tried in order and the first enabled
rule that matches wins. {text} inserts the whole normalized input.`,
	SilenceUsage: true,
	RunE:         func(cmd *cobra.Command, args []string) error { return cmd.Help() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "RingSnap %s\n", version.Version)
		fmt.Fprintf(out, "  Git commit: %s\n", version.GitCommit)
		fmt.Fprintf(out, "  Build date: %s\n", version.BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/ringsnap/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config and sets up stderr logging for one-shot commands.
// Engine warnings (skipped invalid patterns) go to stderr, never to stdout.
func loadConfig() (*config.Manager, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Get().Log.Level
	if level == "" || level == "info" {
		level = "warn"
	}
	if err := log.Setup("", level); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, nil
}
