//go:build !windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// startDetachedProcess 在后台拉起 "ringsnap serve --detached" 子进程，并与当前终端会话脱离，
// 以避免终端关闭导致服务收到 SIGHUP 退出。
func startDetachedProcess(cfgPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	c := exec.Command(exe, detachedArgs(cfgPath)...)
	c.Env = os.Environ()
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// 日志写入配置中的 log.file；stdout/stderr 丢弃即可。
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		defer devNull.Close()
		c.Stdin = devNull
		c.Stdout = devNull
		c.Stderr = devNull
	}

	if err := c.Start(); err != nil {
		return err
	}
	return c.Process.Release()
}
