package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// level 在所有 handler 间共享，配置热更新时可直接调整，无需重建 logger。
	level = new(slog.LevelVar)

	fileMu  sync.Mutex
	logFile *os.File
)

// Setup initializes the logger with file output. An empty logPath logs to stderr only.
func Setup(logPath string, lvl string) error {
	level.Set(ParseLevel(lvl))

	if strings.TrimSpace(logPath) == "" {
		swapFile(nil)
		slog.SetDefault(slog.New(newHandler(os.Stderr)))
		return nil
	}

	f, err := openLogFile(logPath)
	if err != nil {
		return err
	}
	swapFile(f)

	// Create handler that writes to both stderr and file
	slog.SetDefault(slog.New(newHandler(io.MultiWriter(os.Stderr, f))))
	return nil
}

// SetFileOnly switches to file-only logging (no stderr)
func SetFileOnly(logPath string, lvl string) error {
	level.Set(ParseLevel(lvl))

	f, err := openLogFile(logPath)
	if err != nil {
		return err
	}
	swapFile(f)

	slog.SetDefault(slog.New(newHandler(f)))
	return nil
}

// SetLevel changes the level of the handlers installed by Setup/SetFileOnly.
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

// Level returns the current level.
func Level() slog.Level {
	return level.Level()
}

// Close closes the log file, if any, and falls back to stderr.
func Close() error {
	slog.SetDefault(slog.New(newHandler(os.Stderr)))
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ParseLevel maps debug/info/warn/error (case-insensitive) to a slog level.
// Unknown values map to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

func openLogFile(logPath string) (*os.File, error) {
	logPath = ExpandPath(logPath)

	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func swapFile(f *os.File) {
	fileMu.Lock()
	old := logFile
	logFile = f
	fileMu.Unlock()
	if old != nil && old != f {
		_ = old.Close()
	}
}

// ExpandPath 展开路径中的 "~/"（仅支持当前用户），避免把日志写到相对目录下的 "~" 文件夹。
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
