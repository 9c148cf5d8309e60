// Package filelock guards the node's config files against concurrent writers.
package filelock

import "errors"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("filelock: another sbnode process is modifying the configuration")

// Lock is a held exclusive lock. Release is idempotent.
type Lock struct {
	path    string
	release func() error
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.release == nil {
		return nil
	}
	fn := l.release
	l.release = nil
	return fn()
}
