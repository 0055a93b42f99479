package core

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another invocation already holds the run lock.
var ErrLocked = errors.New("another iptvrun instance is already running")

// RunLock keeps overlapping scheduled invocations from running the pipeline twice.
type RunLock struct {
	path string
	lock *flock.Flock
}

func NewRunLock(path string) *RunLock {
	return &RunLock{path: path, lock: flock.New(path)}
}

func (l *RunLock) Path() string { return l.path }

// Acquire takes the lock without blocking.
func (l *RunLock) Acquire() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (l *RunLock) Release() error {
	return l.lock.Unlock()
}
