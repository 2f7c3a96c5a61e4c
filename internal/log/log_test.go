package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestSetFileOnly_写入文件并可调整级别(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ringsnap.log")
	if err := SetFileOnly(path, "warn"); err != nil {
		t.Fatalf("SetFileOnly 失败：%v", err)
	}
	t.Cleanup(func() { _ = Close() })

	slog.Info("hidden-info")
	slog.Warn("visible-warn")

	SetLevel("debug")
	if Level() != slog.LevelDebug {
		t.Fatalf("SetLevel 未生效：%v", Level())
	}
	slog.Debug("visible-debug")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志失败：%v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden-info") {
		t.Fatalf("warn 级别下不应输出 info：%s", out)
	}
	if !strings.Contains(out, "visible-warn") || !strings.Contains(out, "visible-debug") {
		t.Fatalf("日志内容不完整：%s", out)
	}
}

func TestExpandPath_展开家目录(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/.ringsnap/ringsnap.log"); got != filepath.Join(home, ".ringsnap", "ringsnap.log") {
		t.Fatalf("ExpandPath 结果不符合预期：%q", got)
	}
	if got := ExpandPath(" relative/path "); got != "relative/path" {
		t.Fatalf("相对路径应原样返回：%q", got)
	}
}
