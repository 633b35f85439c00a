// Package daemonctl starts, stops, and inspects the detached daemon
// process from the CLI frontend.
package daemonctl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docker/docker/pkg/reexec"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hfmc/hfmc-go/internal/apperr"
	"github.com/hfmc/hfmc-go/internal/config"
	"github.com/hfmc/hfmc-go/internal/httpclient"
	"github.com/hfmc/hfmc-go/internal/log"
	"github.com/hfmc/hfmc-go/internal/peer"
)

const pidFileName = "daemon.pid"
const logFileName = "daemon.log"
const daemonBinaryName = "hfmcd"

func pidFilePath() string { return filepath.Join(config.Dir(), pidFileName) }

func logFilePath() string { return filepath.Join(config.Dir(), logFileName) }

// daemonBinary locates the hfmcd executable: first next to the running
// hfmc binary (the normal install layout), then on $PATH.
func daemonBinary() (string, error) {
	self := reexec.Self()
	candidate := filepath.Join(filepath.Dir(self), daemonBinaryName)
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		return candidate, nil
	}
	return exec.LookPath(daemonBinaryName)
}

func readPID() (int, bool) {
	b, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func writePID(pid int) error {
	if err := os.MkdirAll(config.Dir(), 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0o644)
}

// Start forks a detached hfmcd process listening on port and returns once
// it has begun accepting connections (or the start timeout elapses).
func Start(ctx context.Context, port int) error {
	self := peer.Peer{IP: "127.0.0.1", Port: port}
	if httpclient.IsDaemonRunning(ctx, self) {
		return fmt.Errorf("daemon already running on port %d: %w", port, apperr.ErrConflict)
	}

	bin, err := daemonBinary()
	if err != nil {
		return fmt.Errorf("locate %s: %w", daemonBinaryName, err)
	}

	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(bin, "-port", strconv.Itoa(port))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", daemonBinaryName, err)
	}
	if err := writePID(cmd.Process.Pid); err != nil {
		log.Warn("daemonctl: failed to persist pid file", "err", err)
	}
	go func() { _ = cmd.Process.Release() }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if httpclient.IsDaemonRunning(ctx, self) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not come up within timeout")
}

// Stop asks the daemon to shut down gracefully over HTTP, falling back to
// a direct signal against the persisted pid if the daemon is unreachable.
func Stop(ctx context.Context, port int) error {
	self := peer.Peer{IP: "127.0.0.1", Port: port}
	if httpclient.StopDaemon(ctx, self) {
		_ = os.Remove(pidFilePath())
		return nil
	}

	pid, ok := readPID()
	if !ok {
		return fmt.Errorf("daemon not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	_ = os.Remove(pidFilePath())
	return nil
}

// Status reports whether the daemon responds over HTTP and, if a pid
// file exists, whether that process is still alive on this host
// (gopsutil/v3, since the stdlib cannot check liveness by pid alone).
type Status struct {
	Running  bool
	PID      int
	PIDAlive bool
}

func GetStatus(ctx context.Context, port int) Status {
	self := peer.Peer{IP: "127.0.0.1", Port: port}
	st := Status{Running: httpclient.IsDaemonRunning(ctx, self)}

	pid, ok := readPID()
	if !ok {
		return st
	}
	st.PID = pid

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err == nil {
		st.PIDAlive = exists
	}
	return st
}
