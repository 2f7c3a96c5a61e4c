package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/rules"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive first-time setup",
	Long:  `Run an interactive wizard that writes the config file and the default rules.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

const cfgTemplateZh = `# RingSnap 配置文件
server:
  # 规则编辑器（/manager/）监听地址
  listen: %s

rules:
  # 规则文件路径；留空则使用 XDG 数据目录
  file: %q
  # 外部编辑规则文件后自动重新加载
  watch: true

match:
  # 为 true 时所有规则忽略大小写
  case_insensitive: %t

icons:
  size: 32

log:
  file: %s
  level: info
`

const cfgTemplateEn = `# RingSnap Configuration
server:
  # Rule editor (/manager/) listen address
  listen: %s

rules:
  # Rules file; empty uses the XDG data directory
  file: %q
  # Reload the rules file when it is edited outside RingSnap
  watch: true

match:
  # When true, every rule matches case-insensitively
  case_insensitive: %t

icons:
  size: 32

log:
  file: %s
  level: info
`

func runInit(cmd *cobra.Command, args []string) error {
	return initWizard(uiLang(), cmd.InOrStdin(), cmd.OutOrStdout(), configPathForInit())
}

func configPathForInit() string {
	if p := strings.TrimSpace(cfgFile); p != "" {
		return config.ExpandPath(p)
	}
	return config.ConfigPath()
}

func initWizard(lang string, in io.Reader, out io.Writer, configPath string) error {
	reader := bufio.NewReader(in)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, uiText(lang, "配置文件已存在：%s\n", "Config file already exists at %s\n"), configPath)
		if !uiIsYes(lang, ask(uiText(lang, "是否覆盖？(y/N): ", "Overwrite? (y/N): "))) {
			fmt.Fprintln(out, uiText(lang, "已取消。", "Aborted."))
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		if lang == "zh" {
			return fmt.Errorf("创建配置目录失败：%w", err)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fmt.Fprintln(out, uiText(lang, "RingSnap 初始化向导", "RingSnap Setup Wizard"))
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	def := config.Default()

	listen := ask(fmt.Sprintf(uiText(lang, "监听地址 [%s]: ", "Listen address [%s]: "), def.Server.Listen))
	if listen == "" {
		listen = def.Server.Listen
	}

	defaultRules := config.DefaultRulesPath()
	rulesFile := ask(fmt.Sprintf(uiText(lang, "规则文件路径 [%s]: ", "Rules file path [%s]: "), defaultRules))
	rulesPath := defaultRules
	if rulesFile != "" {
		rulesPath = config.ExpandPath(rulesFile)
	}

	caseInsensitive := uiIsYes(lang, ask(uiText(lang, "匹配时忽略大小写？(y/N): ", "Match case-insensitively? (y/N): ")))

	logFile := ask(fmt.Sprintf(uiText(lang, "日志文件路径 [%s]: ", "Log file path [%s]: "), def.Log.File))
	if logFile == "" {
		logFile = def.Log.File
	}

	tmpl := cfgTemplateEn
	if lang == "zh" {
		tmpl = cfgTemplateZh
	}
	cfgContent := fmt.Sprintf(tmpl, listen, rulesFile, caseInsensitive, logFile)

	if err := os.WriteFile(configPath, []byte(cfgContent), 0o600); err != nil {
		if lang == "zh" {
			return fmt.Errorf("写入配置失败：%w", err)
		}
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(out, uiText(lang, "\n配置已写入 %s\n", "\nConfig written to %s\n"), configPath)

	// 规则文件不存在时写入默认规则；已存在则保持不变。
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		writeDefaults := !uiIsNo(lang, ask(uiText(lang, "写入默认规则？(Y/n): ", "Write the default rules? (Y/n): ")))
		if writeDefaults {
			store := rules.NewStore(rulesPath)
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(out, uiText(lang, "已写入 %d 条默认规则：%s\n", "Wrote %d default rules to %s\n"), len(store.Snapshot()), rulesPath)
		}
	} else {
		fmt.Fprintf(out, uiText(lang, "保留已有规则文件：%s\n", "Keeping existing rules file: %s\n"), rulesPath)
	}

	fmt.Fprintln(out, uiText(lang, "\n初始化完成！运行 'ringsnap start' 打开规则编辑器，或 'ringsnap convert --clipboard' 直接转换。",
		"\nSetup complete! Run 'ringsnap start' for the rule editor, or 'ringsnap convert --clipboard' to convert."))
	return nil
}
