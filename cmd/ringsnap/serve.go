package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkdust2021/ringsnap/internal/config"
	"github.com/inkdust2021/ringsnap/internal/log"
	"github.com/inkdust2021/ringsnap/internal/server"
	"github.com/inkdust2021/ringsnap/internal/version"
)

var serveDetached bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rule editor server in the foreground",
	RunE:  runServe,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the rule editor server in the background",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE:  runStop,
}

func init() {
	// --detached 由 start 拉起的子进程使用：只写日志文件，不写 stderr。
	serveCmd.Flags().BoolVar(&serveDetached, "detached", false, "log to file only (used by start)")
	_ = serveCmd.Flags().MarkHidden("detached")
}

func runStart(cmd *cobra.Command, args []string) error {
	lang := uiLang()
	out := cmd.OutOrStdout()

	hostport, _ := listenHostportForClient()
	if hostport != "" && isTCPListening(hostport) {
		fmt.Fprintf(out, uiText(lang, "服务已在运行：http://%s/manager/\n", "Server already running: http://%s/manager/\n"), hostport)
		return nil
	}

	if err := startDetachedProcess(cfgFile); err != nil {
		return fmt.Errorf(uiText(lang, "后台启动失败：%w（可改用 ringsnap serve 前台运行）", "background start failed: %w (use ringsnap serve to run in foreground)"), err)
	}
	fmt.Fprintln(out, uiText(lang, "已在后台启动服务。", "Server started in background."))
	if hostport != "" {
		if waitForListen(hostport, 2*time.Second, true) {
			fmt.Fprintf(out, uiText(lang, "规则编辑器：http://%s/manager/\n", "Rule editor: http://%s/manager/\n"), hostport)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), uiText(lang,
				"提示：服务可能尚未就绪或启动失败；请查看日志文件。",
				"Tip: server may not be ready or failed to start; check the log file.",
			))
		}
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	lang := uiLang()

	pid, err := readPid()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New(uiText(lang, "未检测到正在运行的服务。", "No running server detected."))
		}
		return fmt.Errorf(uiText(lang, "读取 PID 失败：%w", "failed to read PID: %w"), err)
	}
	if pid <= 0 || !processAlive(pid) {
		_ = removePidIfMatches(pid)
		return errors.New(uiText(lang, "未检测到正在运行的服务（PID 无效）。", "No running server detected (stale PID)."))
	}

	if err := stopProcessByPID(pid); err != nil {
		return fmt.Errorf(uiText(lang, "停止服务失败：%w", "failed to stop server: %w"), err)
	}

	// 等待端口关闭（尽量给出确定反馈）
	if hostport, _ := listenHostportForClient(); hostport != "" {
		waitForListen(hostport, 2*time.Second, false)
	}

	_ = removePidIfMatches(pid)
	fmt.Fprintln(cmd.OutOrStdout(), uiText(lang, "已停止服务。", "Server stopped."))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer func() { _ = cfg.Close() }()

	c := cfg.Get()
	logPath := log.ExpandPath(c.Log.File)
	if serveDetached && logPath != "" {
		err = log.SetFileOnly(logPath, c.Log.Level)
	} else {
		err = log.Setup(logPath, c.Log.Level)
	}
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() { _ = log.Close() }()

	// 记录 PID，方便 ringsnap stop 定位并结束后台进程。
	pid := os.Getpid()
	if err := os.MkdirAll(config.GetConfigDir(), 0o700); err == nil {
		_ = os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)+"\n"), 0o644)
	}
	defer func() { _ = removePidIfMatches(pid) }()

	slog.Info("Starting RingSnap", "version", version.Version, "config", cfg.Path())

	srv := server.NewServer(cfg, server.Options{})
	// 启用配置热更新：匹配选项、图标尺寸、日志级别修改后无需重启。
	if err := cfg.Watch(srv.ReloadFromConfig); err != nil {
		slog.Warn("Failed to enable config hot-reload; restart may be required after config changes", "error", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}

// waitForListen polls hostport until it is accepting (up=true) or closed (up=false).
func waitForListen(hostport string, timeout time.Duration, up bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if isTCPListening(hostport) == up {
			return true
		}
		time.Sleep(150 * time.Millisecond)
	}
	return false
}

func isTCPListening(hostport string) bool {
	c, err := net.DialTimeout("tcp", hostport, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

func pidFilePath() string {
	return filepath.Join(config.GetConfigDir(), "ringsnap.pid")
}

func readPid() (int, error) {
	b, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, errors.New("empty pid file")
	}
	return strconv.Atoi(s)
}

func removePidIfMatches(pid int) error {
	b, err := os.ReadFile(pidFilePath())
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(b)) != strconv.Itoa(pid) {
		return nil
	}
	return os.Remove(pidFilePath())
}

func stopProcessByPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		return p.Kill()
	}

	// 尽量优雅退出
	if err := p.Signal(syscall.SIGTERM); err != nil {
		if !processAlive(pid) {
			return nil
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(120 * time.Millisecond)
	}

	// 超时仍未退出：强制结束
	if err := p.Kill(); err != nil && processAlive(pid) {
		return err
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		// Windows 下无法可靠 signal 0；保守返回 true，由端口探测兜底。
		return true
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func listenHostportForClient() (string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", err
	}
	defer func() { _ = cfg.Close() }()
	return clientHostport(cfg.Get().Server.Listen), nil
}

// clientHostport turns a listen address into one a local client can dial.
func clientHostport(listen string) string {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		listen = config.Default().Server.Listen
	}
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}

	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	host = strings.TrimSpace(host)
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
