//go:build windows

package main

import (
	"os"
	"os/exec"
	"syscall"
)

// startDetachedProcess 在 Windows 上以“脱离控制台”的方式启动服务子进程。
func startDetachedProcess(cfgPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	c := exec.Command(exe, detachedArgs(cfgPath)...)
	c.Env = os.Environ()

	// 让子进程独立运行，避免父进程退出或控制台关闭影响子进程。
	c.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
		HideWindow:    true,
	}

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
