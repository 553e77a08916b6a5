package ipc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another lyricfx instance is already running")

// pidLock is a flock-protected file holding the owner's pid.
type pidLock struct {
	path string
	file *os.File
}

// removeStale deletes a lock file left behind by a dead process.
func (l *pidLock) removeStale() {
	content, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger().Warn().Err(err).Msg("Failed to read lock file, removing it")
		os.Remove(l.path)
		return
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		logger().Warn().Str("content", string(content)).Msg("Invalid pid in lock file, removing it")
		os.Remove(l.path)
		return
	}

	// kill(pid, 0) 只检查进程是否存在
	if syscall.Kill(pid, 0) != nil {
		logger().Info().Int("old_pid", pid).Msg("Lock owner is gone, removing lock file")
		os.Remove(l.path)
		return
	}
	logger().Info().Int("existing_pid", pid).Msg("Lock file owner is still running")
}

func (l *pidLock) acquire() error {
	l.removeStale()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := writePid(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("failed to write pid to lock file: %w", err)
	}

	l.file = file
	logger().Info().Str("lock_file", l.path).Int("pid", os.Getpid()).Msg("Acquired process lock")
	return nil
}

// writePid replaces the file content with the current pid.
func writePid(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		return err
	}
	return nil
}

func (l *pidLock) release() {
	if l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
	logger().Info().Str("lock_file", l.path).Msg("Released process lock")
}
