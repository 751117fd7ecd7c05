package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ReadPIDFile returns the process ID recorded in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Signal sends sig to the daemon recorded in pidFile.
func Signal(pidFile string, sig syscall.Signal) (int, error) {
	if pidFile == "" {
		return 0, fmt.Errorf("pid_file is not configured")
	}
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("daemon not running: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := process.Signal(sig); err != nil {
		return pid, fmt.Errorf("signal %d: %w", pid, err)
	}
	return pid, nil
}

// WaitForExit polls until the PID file disappears or timeout elapses.
func WaitForExit(pidFile string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidFile); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not exit within %s", timeout)
}
