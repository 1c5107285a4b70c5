package fsutil

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/swiftos/birdy/internal/messages"
)

// DefaultLockTimeout bounds how long a lock acquisition waits for a competing holder.
const DefaultLockTimeout = 30 * time.Second

// Lock is an exclusive advisory lock held on an open lock file.
type Lock struct {
	file *os.File
}

var flockFn = unix.Flock
var lockSleep = time.Sleep

var lockPollEvery = 100 * time.Millisecond

// WithFileLock acquires an exclusive lock on path, runs fn, and releases the lock.
// A timeout of zero or less uses DefaultLockTimeout.
func WithFileLock(path string, timeout time.Duration, fn func() error) error {
	lock, err := AcquireFileLock(path, timeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()
	return fn()
}

// AcquireFileLock opens or creates path and acquires an exclusive lock on it.
func AcquireFileLock(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf(messages.FsutilOpenLockFmt, path, err)
	}
	if err := lockFile(file, timeout); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf(messages.FsutilLockFmt, path, err)
	}
	return &Lock{file: file}, nil
}

// Release unlocks and closes the lock file. The lock file itself is left on disk.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockFn(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// lockFile polls for an exclusive advisory lock until timeout elapses.
func lockFile(file *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf(messages.FsutilLockTimeoutFmt, timeout)
		}
		lockSleep(lockPollEvery)
	}
}
