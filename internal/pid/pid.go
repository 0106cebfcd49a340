// Package pid keeps the daemon single-instance and lets one-shot invocations signal it.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/perfctl/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Lock is a held PID file. The advisory lock is released by the kernel if the daemon
// dies, so a stale file never blocks the next start.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on path and records the current PID in it.
func Acquire(path string) (*Lock, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errFactory.WithData(errors.ErrAlreadyRunning, path)
		}
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release removes the PID file and drops the lock.
func (l *Lock) Release() error {
	errFactory := errors.New()

	if l == nil || l.file == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.file.Close()
		l.file = nil
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := l.file.Close()
	l.file = nil
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Read returns the PID recorded in path.
func Read(path string) (int, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errFactory.WithData(errors.ErrNotRunning, path)
		}
		return 0, errFactory.Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errFactory.WithData(errors.ErrNotRunning, path)
	}

	return pid, nil
}

// Signal delivers sig to the daemon recorded in path.
func Signal(path string, sig unix.Signal) error {
	errFactory := errors.New()

	pid, err := Read(path)
	if err != nil {
		return err
	}

	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return errFactory.WithData(errors.ErrNotRunning, pid)
		}
		return errFactory.Wrap(errors.ErrSignalDaemon, err)
	}

	return nil
}
