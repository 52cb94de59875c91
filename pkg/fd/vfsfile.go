package fd

import (
	"sync"

	"github.com/easykernel/easykernel/pkg/vfs"
)

// VFSFile adapts a vfs.Inode into a File: a stream with its own read/write
// offset, advanced by every call, matching the open-file-description
// semantics a real fd table entry carries (distinct from the inode itself,
// which carries no position).
type VFSFile struct {
	mu     sync.Mutex
	inode  *vfs.Inode
	name   string
	offset uint32
}

// NewVFSFile returns a File reading and writing inode from offset zero. name
// is the path it was opened under, kept around for fstat lookups in a
// filesystem with no hierarchical directories to walk back up through.
func NewVFSFile(inode *vfs.Inode, name string) *VFSFile {
	return &VFSFile{inode: inode, name: name}
}

// Inode returns the underlying inode handle, e.g. for fstat.
func (f *VFSFile) Inode() *vfs.Inode { return f.inode }

// Name returns the path this file was opened under.
func (f *VFSFile) Name() string { return f.name }

func (f *VFSFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.inode.ReadAt(f.offset, buf)
	f.offset += uint32(n)
	return n, nil
}

func (f *VFSFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.inode.WriteAt(f.offset, buf)
	f.offset += uint32(n)
	return n, nil
}

// Close is a no-op: the inode lives on in the filesystem regardless of how
// many descriptors referenced this open file.
func (f *VFSFile) Close() error { return nil }
