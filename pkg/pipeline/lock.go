package pipeline

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another pipeline run holds the lock")

// Lock is an exclusive advisory lock held for the whole of one run.
type Lock struct {
	f *os.File
}

// LockPath returns the lock file used for a database.
func LockPath(database string) string {
	return database + ".lock"
}

// AcquireLock takes the lock at path without waiting. It fails with ErrLocked
// when another process holds it.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
