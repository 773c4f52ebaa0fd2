// Package singleton enforces a single live AIDIS core process per PID file
// path. It is an operational safeguard only; it does not claim
// to serialize access to the database.
package singleton

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/rs/zerolog/log"
)

// Guard holds the acquired PID file and removes it exactly once on release.
type Guard struct {
	path     string
	once     sync.Once
}

// Acquire writes the current process id to path, failing with
// apierr.CodeAlreadyRunning if a live instance already holds it. A stale
// file (referenced process no longer alive) is cleaned up and replaced.
func Acquire(path string) (*Guard, error) {
	if path == "" {
		return nil, apierr.New(apierr.CodeInternal, "singleton: empty pid file path")
	}

	if existing, err := readPID(path); err == nil {
		if processAlive(existing) {
			return nil, apierr.Newf(apierr.CodeAlreadyRunning,
				"another aidis-core instance (pid %d) is already running; pid file %s", existing, path)
		}
		log.Warn().Int("pid", existing).Str("path", path).Msg("removing stale pid file")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, apierr.Wrap(err, "failed to remove stale pid file")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apierr.Wrap(err, "failed to create pid file directory")
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return nil, apierr.Wrap(err, "failed to write pid file")
	}

	log.Info().Int("pid", pid).Str("path", path).Msg("acquired process singleton")
	return &Guard{path: path}, nil
}

// Release removes the PID file. It is idempotent and safe to call from a
// deferred cleanup or a signal handler.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", g.path).Msg("failed to remove pid file on shutdown")
			return
		}
		log.Info().Str("path", g.path).Msg("released process singleton")
	})
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("pid file %s does not contain a valid pid: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether pid refers to a live process by sending the
// null signal, checking real OS state rather than trusting the file's
// mere existence.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
