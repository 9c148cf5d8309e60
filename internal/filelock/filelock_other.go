//go:build !unix

package filelock

// Acquire is a no-op where flock is unavailable.
func Acquire(path string) (*Lock, error) {
	return &Lock{path: path}, nil
}
