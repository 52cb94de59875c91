// Package fd implements a process's file descriptor table.
package fd

import "sync"

// File is anything reachable through a descriptor: a concrete
// implementation wraps a vfs.Inode, a pipe endpoint, or a console stream.
type File interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

type entry struct {
	file File
	refs int
}

// Table is a process's refcounted file descriptor table. Entries are
// refcounted because fork duplicates descriptors by reference, not by
// reopening the underlying File.
type Table struct {
	mu      sync.Mutex
	entries []*entry
}

// New returns an empty descriptor table.
func New() *Table { return &Table{} }

// Install places file in the first free slot (or appends one), returning
// its descriptor number.
func (t *Table) Install(file File) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e == nil {
			t.entries[i] = &entry{file: file, refs: 1}
			return i
		}
	}
	t.entries = append(t.entries, &entry{file: file, refs: 1})
	return len(t.entries) - 1
}

// Get returns the File installed at fdNum, or nil if it's closed or out of
// range.
func (t *Table) Get(fdNum int) File {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(fdNum)
	if e == nil {
		return nil
	}
	return e.file
}

// Close drops one reference to fdNum's entry, closing the underlying File
// once the refcount reaches zero. Returns false if fdNum wasn't open.
func (t *Table) Close(fdNum int) bool {
	t.mu.Lock()
	e := t.entryLocked(fdNum)
	if e == nil {
		t.mu.Unlock()
		return false
	}
	e.refs--
	closeNow := e.refs <= 0
	if closeNow {
		t.entries[fdNum] = nil
	}
	t.mu.Unlock()

	if closeNow {
		e.file.Close()
	}
	return true
}

func (t *Table) entryLocked(fdNum int) *entry {
	if fdNum < 0 || fdNum >= len(t.entries) {
		return nil
	}
	return t.entries[fdNum]
}

// Fork returns a new Table aliasing the same File objects as t, with each
// entry's refcount bumped by one.
func (t *Table) Fork() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &Table{entries: make([]*entry, len(t.entries))}
	for i, e := range t.entries {
		if e == nil {
			continue
		}
		e.refs++
		out.entries[i] = e
	}
	return out
}
