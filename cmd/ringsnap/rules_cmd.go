package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/rules"
)

var (
	rulesExportFormat string
	rulesExportOutput string

	ruleAddName       string
	ruleAddPattern    string
	ruleAddURL        string
	ruleAddIcon       string
	ruleAddIconSource int
	ruleAddDisabled   bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit the rule set",
	RunE:  func(cmd *cobra.Command, args []string) error { return cmd.Help() },
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in priority order",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, _ []string, store *rules.Store) error {
		printRules(cmd.OutOrStdout(), store.Snapshot(), match.New(match.Options{}))
		return nil
	}),
}

var rulesPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the rules file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = cfg.Close() }()
		fmt.Fprintln(cmd.OutOrStdout(), cfg.RulesPath())
		return nil
	},
}

var rulesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the rule set with the built-in defaults",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, _ []string, store *rules.Store) error {
		if err := store.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %d rules in %s\n", len(store.Snapshot()), store.Path())
		return nil
	}),
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a rule (lowest priority)",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, _ []string, store *rules.Store) error {
		rule := config.SanitizeRule(rules.Rule{
			Name:            ruleAddName,
			Pattern:         ruleAddPattern,
			URL:             ruleAddURL,
			Icon:            ruleAddIcon,
			Enabled:         !ruleAddDisabled,
			IconSourceIndex: max(ruleAddIconSource, 0),
		})
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := match.New(match.Options{}).Check(rule.Pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		rs := store.Snapshot()
		if err := store.Save(rs.Append(rule)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added rule %d: %s\n", len(rs), rule.Name)
		return nil
	}),
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <index>",
	Short: "Enable the rule at index",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(true),
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <index>",
	Short: "Disable the rule at index (keeps its position)",
	Args:  cobra.ExactArgs(1),
	RunE:  setEnabled(false),
}

var rulesRemoveCmd = &cobra.Command{
	Use:     "remove <index>",
	Aliases: []string{"rm"},
	Short:   "Remove the rule at index",
	Args:    cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store *rules.Store) error {
		i, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		rs := store.Snapshot()
		next, err := rs.Remove(i)
		if err != nil {
			return err
		}
		if err := store.Save(next); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed rule %d: %s\n", i, rs[i].Name)
		return nil
	}),
}

var rulesMoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move a rule to a new priority position",
	Args:  cobra.ExactArgs(2),
	RunE: withStore(func(cmd *cobra.Command, args []string, store *rules.Store) error {
		from, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		to, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		next, err := store.Snapshot().Move(from, to)
		if err != nil {
			return err
		}
		if err := store.Save(next); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved rule %d to %d: %s\n", from, to, next[to].Name)
		return nil
	}),
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the rule set as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, _ []string, store *rules.Store) error {
		data, err := encodeRules(store.Snapshot(), rulesExportFormat)
		if err != nil {
			return err
		}
		if rulesExportOutput == "" || rulesExportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(rulesExportOutput, data, 0o600)
	}),
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the rule set with the contents of a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store *rules.Store) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rs, err := decodeRules(data, args[0])
		if err != nil {
			return err
		}
		for i := range rs {
			rs[i] = config.SanitizeRule(rs[i])
		}
		if err := store.Save(rs); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d rules into %s\n", len(rs), store.Path())
		eng := match.New(match.Options{})
		for i, r := range rs {
			if _, err := eng.Compile(r.Pattern); err != nil {
				fmt.Fprintf(out, "  warning: rule %d (%s) will be skipped: %v\n", i, r.Name, err)
			}
		}
		return nil
	}),
}

func init() {
	rulesAddCmd.Flags().StringVar(&ruleAddName, "name", "", "rule name (required)")
	rulesAddCmd.Flags().StringVar(&ruleAddPattern, "pattern", "", "regular expression")
	rulesAddCmd.Flags().StringVar(&ruleAddURL, "url", "", "URL template, e.g. https://example.com/{1}")
	rulesAddCmd.Flags().StringVar(&ruleAddIcon, "icon", "", "icon domain or URL")
	rulesAddCmd.Flags().IntVar(&ruleAddIconSource, "icon-source", 0, "icon source index")
	rulesAddCmd.Flags().BoolVar(&ruleAddDisabled, "disabled", false, "add the rule disabled")
	_ = rulesAddCmd.MarkFlagRequired("name")
	_ = rulesAddCmd.MarkFlagRequired("pattern")
	_ = rulesAddCmd.MarkFlagRequired("url")

	rulesExportCmd.Flags().StringVar(&rulesExportFormat, "format", "json", "output format: json|yaml")
	rulesExportCmd.Flags().StringVarP(&rulesExportOutput, "output", "o", "", "output file (default stdout)")

	rulesCmd.AddCommand(rulesListCmd, rulesPathCmd, rulesResetCmd, rulesAddCmd,
		rulesEnableCmd, rulesDisableCmd, rulesRemoveCmd, rulesMoveCmd,
		rulesExportCmd, rulesImportCmd)
}

// withStore loads the config and the rule store before running fn.
func withStore(fn func(cmd *cobra.Command, args []string, store *rules.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = cfg.Close() }()

		store := rules.NewStore(cfg.RulesPath())
		store.Load()
		return fn(cmd, args, store)
	}
}

func setEnabled(enabled bool) func(*cobra.Command, []string) error {
	return withStore(func(cmd *cobra.Command, args []string, store *rules.Store) error {
		i, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		next, err := store.Snapshot().SetEnabled(i, enabled)
		if err != nil {
			return err
		}
		if err := store.Save(next); err != nil {
			return err
		}
		state := "Disabled"
		if enabled {
			state = "Enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s rule %d: %s\n", state, i, next[i].Name)
		return nil
	})
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

func printRules(w io.Writer, rs rules.RuleSet, eng *match.Engine) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "(no rules)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tON\tNAME\tPATTERN\tURL")
	for i, r := range rs {
		on := "yes"
		if !r.Enabled {
			on = "no"
		}
		if _, err := eng.Compile(r.Pattern); err != nil {
			on = "invalid"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, on, r.Name, r.Pattern, r.URL)
	}
	_ = tw.Flush()
}

func encodeRules(rs rules.RuleSet, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return rules.Encode(rs)
	case "yaml", "yml":
		return rules.EncodeYAML(rs)
	default:
		return nil, fmt.Errorf("unknown format %q (expected json|yaml)", format)
	}
}

// decodeRules picks the decoder from the file extension; unknown extensions try
// JSON first, then YAML.
func decodeRules(data []byte, name string) (rules.RuleSet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return rules.DecodeYAML(data)
	case ".json":
		return rules.Decode(data)
	}
	rs, err := rules.Decode(data)
	if err == nil {
		return rs, nil
	}
	if rs, yerr := rules.DecodeYAML(data); yerr == nil {
		return rs, nil
	}
	return nil, err
}
