// Package vfs is the filesystem-facing handle layer above easyfs: each
// Inode pins a (block id, byte offset) pair identifying its on-disk record
// and serializes multi-step operations (create, link, unlink, growth,
// clear) through its owning filesystem's whole-image lock.
package vfs

import (
	"github.com/easykernel/easykernel/pkg/block"
	"github.com/easykernel/easykernel/pkg/easyfs"
)

// Inode is a handle onto one on-disk inode record.
type Inode struct {
	blockID     block.ID
	blockOffset uint32

	fs    *easyfs.EasyFileSystem
	cache *block.Cache
}

// New wraps the on-disk inode at (blockID, blockOffset) in fs.
func New(fs *easyfs.EasyFileSystem, blockID block.ID, blockOffset uint32) *Inode {
	return &Inode{blockID: blockID, blockOffset: blockOffset, fs: fs, cache: fs.Cache()}
}

// Root returns a handle onto the filesystem's root directory.
func Root(fs *easyfs.EasyFileSystem) *Inode {
	blockID, offset := fs.GetDiskInodePos(easyfs.RootInodeID)
	return New(fs, blockID, offset)
}

func (in *Inode) readDisk(f func(d *easyfs.DiskInode)) {
	in.cache.Read(in.blockID, func(buf *block.Bytes) {
		var d easyfs.DiskInode
		d.UnmarshalAt(buf, in.blockOffset)
		f(&d)
	})
}

func (in *Inode) modifyDisk(f func(d *easyfs.DiskInode)) {
	in.cache.Modify(in.blockID, func(buf *block.Bytes) {
		var d easyfs.DiskInode
		d.UnmarshalAt(buf, in.blockOffset)
		f(&d)
		d.MarshalAt(buf, in.blockOffset)
	})
}

// findInodeID scans d's directory entries for name, assuming d is a
// directory (caller holds in.fs's lock).
func (in *Inode) findInodeID(name string, d *easyfs.DiskInode) (easyfs.InodeID, bool) {
	if !d.IsDir() {
		panic("vfs.Inode: findInodeID on a non-directory")
	}
	count := int(d.Size) / easyfs.DirEntSize
	var raw [easyfs.DirEntSize]byte
	for i := 0; i < count; i++ {
		n := d.ReadAt(uint32(i*easyfs.DirEntSize), raw[:], in.cache)
		if n != easyfs.DirEntSize {
			panic("vfs.Inode: short directory entry read")
		}
		e := easyfs.UnmarshalDirEntry(raw[:])
		if e.Name == name {
			return e.InodeID, true
		}
	}
	return 0, false
}

// Find looks up name among this inode's directory entries. Returns nil if
// not found. LOCKS(fs).
func (in *Inode) Find(name string) *Inode {
	in.fs.Lock()
	defer in.fs.Unlock()

	var found *Inode
	in.readDisk(func(d *easyfs.DiskInode) {
		if id, ok := in.findInodeID(name, d); ok {
			blockID, offset := in.fs.GetDiskInodePos(id)
			found = New(in.fs, blockID, offset)
		}
	})
	return found
}

// increaseSize grows d to newSize, allocating whatever new data/index
// blocks are needed. LOCKS_REQUIRED(in.fs).
func (in *Inode) increaseSize(newSize uint32, d *easyfs.DiskInode) {
	if newSize <= d.Size {
		return
	}
	needed := d.BlocksNumNeeded(newSize)
	ids := make([]block.ID, needed)
	for i := range ids {
		id, err := in.fs.AllocData()
		if err != nil {
			panic("vfs.Inode: out of data blocks growing inode: " + err.Error())
		}
		ids[i] = id
	}
	d.IncreaseSize(newSize, ids, in.cache)
}

// LinkAt appends a new directory entry named newName pointing at whatever
// inode oldName currently resolves to. A no-op if oldName doesn't exist.
// An existing entry named newName is not checked for: a duplicate is appended.
// LOCKS(fs).
func (in *Inode) LinkAt(oldName, newName string) {
	in.fs.Lock()
	defer in.fs.Unlock()

	in.modifyDisk(func(d *easyfs.DiskInode) {
		id, ok := in.findInodeID(oldName, d)
		if !ok {
			return
		}
		count := int(d.Size) / easyfs.DirEntSize
		in.increaseSize(uint32((count+1)*easyfs.DirEntSize), d)
		e := easyfs.DirEntry{Name: newName, InodeID: id}
		raw := e.Marshal()
		n := d.WriteAt(uint32(count*easyfs.DirEntSize), raw[:], in.cache)
		if n != easyfs.DirEntSize {
			panic("vfs.Inode: short directory entry write")
		}
	})
}

// UnlinkAt removes the directory entry named name, compacting the entries
// that followed it. Returns false if name wasn't found.
func (in *Inode) UnlinkAt(name string) bool {
	in.fs.Lock()
	defer in.fs.Unlock()

	ok := false
	in.modifyDisk(func(d *easyfs.DiskInode) {
		if !d.IsDir() {
			panic("vfs.Inode: unlink_at on a non-directory")
		}
		count := int(d.Size) / easyfs.DirEntSize
		var raw [easyfs.DirEntSize]byte
		for i := 0; i < count; i++ {
			d.ReadAt(uint32(i*easyfs.DirEntSize), raw[:], in.cache)
			e := easyfs.UnmarshalDirEntry(raw[:])
			if e.Name != name {
				continue
			}
			for j := i + 1; j < count; j++ {
				d.ReadAt(uint32(j*easyfs.DirEntSize), raw[:], in.cache)
				d.WriteAt(uint32((j-1)*easyfs.DirEntSize), raw[:], in.cache)
			}
			d.Size = uint32((count - 1) * easyfs.DirEntSize)
			ok = true
			return
		}
	})
	return ok
}

// GetFstat returns the inode id and link count of the directory entry named
// name. Returns (0, 0, false) if not found.
func (in *Inode) GetFstat(name string) (easyfs.InodeID, int, bool) {
	in.fs.Lock()
	defer in.fs.Unlock()

	var (
		id    easyfs.InodeID
		nlink int
		found bool
	)
	in.readDisk(func(d *easyfs.DiskInode) {
		if !d.IsDir() {
			panic("vfs.Inode: get_fstat on a non-directory")
		}
		count := int(d.Size) / easyfs.DirEntSize
		var raw [easyfs.DirEntSize]byte
		var targetID easyfs.InodeID
		targetFound := false
		for i := 0; i < count; i++ {
			d.ReadAt(uint32(i*easyfs.DirEntSize), raw[:], in.cache)
			e := easyfs.UnmarshalDirEntry(raw[:])
			if e.Name == name {
				targetID = e.InodeID
				targetFound = true
				break
			}
		}
		if !targetFound {
			return
		}
		for i := 0; i < count; i++ {
			d.ReadAt(uint32(i*easyfs.DirEntSize), raw[:], in.cache)
			e := easyfs.UnmarshalDirEntry(raw[:])
			if e.InodeID == targetID {
				nlink++
			}
		}
		id, found = targetID, true
	})
	return id, nlink, found
}

// Create creates a new file inode named name as a child of this (directory)
// inode. Returns nil if name already exists.
func (in *Inode) Create(name string) *Inode {
	in.fs.Lock()
	defer in.fs.Unlock()

	var exists bool
	in.readDisk(func(d *easyfs.DiskInode) {
		if !d.IsDir() {
			panic("vfs.Inode: create on a non-directory")
		}
		_, exists = in.findInodeID(name, d)
	})
	if exists {
		return nil
	}

	newID, err := in.fs.AllocInode()
	if err != nil {
		panic("vfs.Inode: out of inodes: " + err.Error())
	}
	blockID, offset := in.fs.GetDiskInodePos(newID)
	in.cache.Modify(blockID, func(buf *block.Bytes) {
		var d easyfs.DiskInode
		d.Initialize(easyfs.TypeFile)
		d.MarshalAt(buf, offset)
	})

	in.modifyDisk(func(d *easyfs.DiskInode) {
		count := int(d.Size) / easyfs.DirEntSize
		in.increaseSize(uint32((count+1)*easyfs.DirEntSize), d)
		e := easyfs.DirEntry{Name: name, InodeID: newID}
		raw := e.Marshal()
		d.WriteAt(uint32(count*easyfs.DirEntSize), raw[:], in.cache)
	})

	in.fs.SyncAll()
	return New(in.fs, blockID, offset)
}

// Ls lists the names of this directory's entries.
func (in *Inode) Ls() []string {
	in.fs.Lock()
	defer in.fs.Unlock()

	var names []string
	in.readDisk(func(d *easyfs.DiskInode) {
		count := int(d.Size) / easyfs.DirEntSize
		var raw [easyfs.DirEntSize]byte
		for i := 0; i < count; i++ {
			d.ReadAt(uint32(i*easyfs.DirEntSize), raw[:], in.cache)
			names = append(names, easyfs.UnmarshalDirEntry(raw[:]).Name)
		}
	})
	return names
}

// ReadAt reads into buf starting at offset. Returns the number of bytes
// read.
func (in *Inode) ReadAt(offset uint32, buf []byte) int {
	in.fs.Lock()
	defer in.fs.Unlock()

	var n int
	in.readDisk(func(d *easyfs.DiskInode) { n = d.ReadAt(offset, buf, in.cache) })
	return n
}

// WriteAt writes buf at offset, growing the inode first if necessary.
// Returns the number of bytes written.
func (in *Inode) WriteAt(offset uint32, buf []byte) int {
	in.fs.Lock()
	defer in.fs.Unlock()

	var n int
	in.modifyDisk(func(d *easyfs.DiskInode) {
		in.increaseSize(offset+uint32(len(buf)), d)
		n = d.WriteAt(offset, buf, in.cache)
	})
	in.fs.SyncAll()
	return n
}

// Clear truncates this inode to zero length, returning every data/index
// block it held to the filesystem's free pool.
func (in *Inode) Clear() {
	in.fs.Lock()
	defer in.fs.Unlock()

	in.modifyDisk(func(d *easyfs.DiskInode) {
		freed := d.ClearSize(in.cache)
		for _, id := range freed {
			if err := in.fs.DeallocData(id); err != nil {
				panic("vfs.Inode: double-free clearing inode: " + err.Error())
			}
		}
	})
	in.fs.SyncAll()
}

// InodeID returns the on-disk inode id this handle refers to, by
// recomputing it from the handle's (block, offset) pair.
func (in *Inode) InodeID() easyfs.InodeID {
	return in.fs.InodeIDAt(in.blockID, in.blockOffset)
}
