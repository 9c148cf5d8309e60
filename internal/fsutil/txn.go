package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Txn replaces several files as one unit: every file gets its new content or
// every file keeps its old content.
type Txn struct {
	writes []pending
}

type pending struct {
	path string
	data []byte
	perm os.FileMode

	tmp     string
	backup  []byte
	existed bool
	mode    os.FileMode
	done    bool
}

// Add queues a file replacement. Adding the same path twice keeps the last data.
func (t *Txn) Add(path string, data []byte, perm os.FileMode) {
	for i := range t.writes {
		if t.writes[i].path == path {
			t.writes[i].data = data
			t.writes[i].perm = perm
			return
		}
	}
	t.writes = append(t.writes, pending{path: path, data: data, perm: perm})
}

// Len returns the number of queued files.
func (t *Txn) Len() int { return len(t.writes) }

// Paths returns the queued paths in order.
func (t *Txn) Paths() []string {
	out := make([]string, 0, len(t.writes))
	for _, w := range t.writes {
		out = append(out, w.path)
	}
	return out
}

// Commit stages every file, snapshots the current contents and swaps the new
// files in. A failed swap puts back everything already swapped.
func (t *Txn) Commit() error {
	for i := range t.writes {
		w := &t.writes[i]
		old, err := os.ReadFile(w.path)
		switch {
		case err == nil:
			w.existed = true
			w.backup = old
			w.mode = w.perm
			if fi, statErr := os.Stat(w.path); statErr == nil {
				w.mode = fi.Mode().Perm()
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			t.cleanup()
			return fmt.Errorf("snapshot %s: %w", w.path, err)
		}

		tmp, err := stage(w.path, w.data, w.perm)
		if err != nil {
			t.cleanup()
			return err
		}
		w.tmp = tmp
	}

	for i := range t.writes {
		w := &t.writes[i]
		if err := rename(w.tmp, w.path); err != nil {
			cause := fmt.Errorf("replace %s: %w", w.path, err)
			rbErr := t.rollback()
			t.cleanup()
			if rbErr != nil {
				return errors.Join(cause, rbErr)
			}
			return cause
		}
		w.tmp = ""
		w.done = true
	}

	dirs := map[string]bool{}
	for _, w := range t.writes {
		dir := filepath.Dir(w.path)
		if !dirs[dir] {
			dirs[dir] = true
			syncDir(dir)
		}
	}
	return nil
}

func (t *Txn) rollback() error {
	var errs []error
	for i := range t.writes {
		w := &t.writes[i]
		if !w.done {
			continue
		}
		if !w.existed {
			if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("rollback remove %s: %w", w.path, err))
			}
			continue
		}
		if err := WriteFile(w.path, w.backup, w.mode); err != nil {
			errs = append(errs, fmt.Errorf("rollback restore %s: %w", w.path, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Txn) cleanup() {
	for i := range t.writes {
		if t.writes[i].tmp != "" {
			os.Remove(t.writes[i].tmp)
			t.writes[i].tmp = ""
		}
	}
}
