// Package lock keeps long-running board processes from overlapping.
//
// A PIDGuard is a PID file under the board directory. Two "serve" processes
// on one board would run two sync loops against the same trackers and
// double the request rate, so the second one refuses to start. Workers on
// separate machines sharing a Postgres store coordinate through the atomic
// claim instead and do not use this guard.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDGuard owns a PID file for one process role.
type PIDGuard struct {
	path string
}

// NewPIDGuard creates a guard for role under dir, e.g. ".taskboard/serve.pid".
func NewPIDGuard(dir, role string) *PIDGuard {
	return &PIDGuard{path: filepath.Join(dir, role+".pid")}
}

// Path returns the PID file location.
func (g *PIDGuard) Path() string {
	return g.path
}

// Acquire records the current process. A PID file left by a process that no
// longer exists, or one that cannot be parsed, is replaced.
func (g *PIDGuard) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(g.path)
				return fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create pid file: %w", err)
		}
		if pid, alive := g.holder(); alive {
			return &AlreadyRunningError{PID: pid, Path: g.path}
		}
		_ = os.Remove(g.path)
	}
	return fmt.Errorf("pid file %s keeps reappearing", g.path)
}

// Release removes the PID file if this process owns it.
func (g *PIDGuard) Release() {
	if pid, _ := g.holder(); pid == os.Getpid() {
		_ = os.Remove(g.path)
	}
}

func (g *PIDGuard) holder() (int, bool) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, processExists(pid)
}

// AlreadyRunningError reports the live process holding the guard.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("already running as pid %d (remove %s if that is wrong)", e.PID, e.Path)
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}
