package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdust2021/ringsnap/internal/clipboard"
	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/normalize"
	"github.com/inkdust2021/ringsnap/internal/rules"
	"github.com/inkdust2021/ringsnap/internal/transform"
)

var errNoMatch = errors.New("no rule matched")

// systemClipboard 为 --clipboard / --copy 使用的剪贴板；测试中替换。
var systemClipboard interface {
	transform.Selection
	SetText(string) error
} = clipboard.System{}

var (
	convertFromClipboard bool
	convertAll           bool
	convertCopy          bool
	convertVerbose       bool
	testIgnoreCase       bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [text...]",
	Short: "Convert text (or the clipboard) into a URL",
	Long: `Convert text into a URL using the configured rules.

The text is taken from the arguments, or from the clipboard with --clipboard.
With no arguments and no --clipboard, the text is read from stdin.`,
	RunE: runConvert,
}

var testCmd = &cobra.Command{
	Use:   "test <pattern> <template> <text>",
	Short: "Try a single rule against sample text",
	Long: `Try a pattern and URL template against sample text without touching the
rules file. Capture groups and the expanded URL are printed.`,
	Args: cobra.ExactArgs(3),
	RunE: runTest,
}

func init() {
	convertCmd.Flags().BoolVar(&convertFromClipboard, "clipboard", false, "read the text from the clipboard")
	convertCmd.Flags().BoolVar(&convertAll, "all", false, "print every matching rule, in priority order")
	convertCmd.Flags().BoolVar(&convertCopy, "copy", false, "copy the resulting URL to the clipboard (with --all, the first candidate)")
	convertCmd.Flags().BoolVarP(&convertVerbose, "verbose", "v", false, "also print the rule name")
	testCmd.Flags().BoolVarP(&testIgnoreCase, "ignore-case", "i", false, "match case-insensitively")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	store := rules.NewStore(cfg.RulesPath())
	store.Load()
	svc := transform.New(store, match.New(match.Options{
		CaseInsensitive: cfg.Get().Match.CaseInsensitive,
	}))

	src, err := convertSource(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if convertAll {
		text, err := src.Text()
		if err != nil {
			return fmt.Errorf("read selection: %w", err)
		}
		results := svc.TransformAll(text)
		if len(results) == 0 {
			return errNoMatch
		}
		for _, res := range results {
			fmt.Fprintf(out, "%d\t%s\t%s\n", res.Index, res.Rule.Name, res.URL)
		}
		// 第一个候选即普通模式下的结果。
		if convertCopy {
			return systemClipboard.SetText(results[0].URL)
		}
		return nil
	}

	res, err := svc.TransformSelection(src)
	if err != nil {
		return err
	}
	if !res.Matched {
		return errNoMatch
	}
	printResult(out, res, convertVerbose)

	if convertCopy {
		if err := systemClipboard.SetText(res.URL); err != nil {
			return err
		}
	}
	return nil
}

// convertSource picks where the text comes from: args, clipboard or stdin.
func convertSource(cmd *cobra.Command, args []string) (transform.Selection, error) {
	switch {
	case convertFromClipboard:
		if len(args) > 0 {
			return nil, errors.New("--clipboard cannot be combined with text arguments")
		}
		return systemClipboard, nil
	case len(args) > 0:
		return clipboard.Static(strings.Join(args, " ")), nil
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return clipboard.Static(string(b)), nil
	}
}

func printResult(w io.Writer, res match.Result, verbose bool) {
	if verbose {
		fmt.Fprintf(w, "%s\t%s\n", res.Rule.Name, res.URL)
		return
	}
	fmt.Fprintln(w, res.URL)
}

func runTest(cmd *cobra.Command, args []string) error {
	pattern, template, raw := args[0], args[1], args[2]
	out := cmd.OutOrStdout()

	eng := match.New(match.Options{CaseInsensitive: testIgnoreCase})
	re, err := eng.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	text := normalize.Text(raw)
	fmt.Fprintf(out, "Text:     %q\n", text)

	m := re.FindStringSubmatch(text)
	if m == nil {
		fmt.Fprintln(out, "Matched:  no")
		return errNoMatch
	}
	fmt.Fprintln(out, "Matched:  yes")
	for i, g := range m[1:] {
		fmt.Fprintf(out, "  {%d} = %q\n", i+1, g)
	}

	res := eng.Match([]rules.Rule{{Name: "test", Pattern: pattern, URL: template, Enabled: true}}, text)
	fmt.Fprintf(out, "URL:      %s\n", res.URL)
	return nil
}
