// Package block implements the block cache and device abstraction: the
// lowest layer of the filesystem stack, pinning a small set of fixed-size
// disk blocks in memory and serializing access to each slot.
package block

import (
	"fmt"
	"os"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// Size is the fixed size in bytes of every block on a device.
const Size = 512

// ID identifies a block on a Device. Blocks are numbered from zero.
type ID uint32

// Bytes is the in-memory contents of one block.
type Bytes = [Size]byte

// Device is the interface the filesystem layer uses to read and write whole
// blocks. Implementations need not be safe for concurrent use; block.Cache
// is responsible for serializing access to each block.
type Device interface {
	// ReadBlock fills buf with the contents of block id.
	ReadBlock(id ID, buf *Bytes) error

	// WriteBlock writes the contents of buf to block id.
	WriteBlock(id ID, buf *Bytes) error

	// BlockCount returns the total number of addressable blocks.
	BlockCount() ID

	// Close releases any resources (file handles, locks) held by the device.
	Close() error
}

// FileDevice is a Device backed by a single regular file, treated as a flat
// array of fixed-size blocks — the host-filesystem analog of a virtual disk
// image.
type FileDevice struct {
	f      *os.File
	blocks ID
}

// NewFileDevice opens (or creates) the disk image at path, ensuring it holds
// at least blockCount blocks.
//
// The image is fallocated to its full size up front so that later writes
// never surprise the host filesystem with a sparse-file expansion.
//
// The image is held open with an exclusive flock(2) for the lifetime of the
// FileDevice, to keep two kernel instances from mounting the same image.
func NewFileDevice(path string, blockCount ID) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w (already mounted?)", path, err)
	}

	size := int64(blockCount) * Size
	if err := fallocate.Fallocate(f, 0, size); err != nil {
		// Not fatal: some filesystems (notably non-Linux targets) don't
		// support fallocate. Fall back to a truncate, which still gives us
		// the right apparent size even if it stays sparse.
		if truncErr := f.Truncate(size); truncErr != nil {
			f.Close()
			return nil, fmt.Errorf("fallocate %s: %v; truncate fallback: %w", path, err, truncErr)
		}
	}

	return &FileDevice{f: f, blocks: blockCount}, nil
}

func (d *FileDevice) ReadBlock(id ID, buf *Bytes) error {
	if id >= d.blocks {
		return fmt.Errorf("block.FileDevice: id %d out of range (have %d blocks)", id, d.blocks)
	}
	_, err := d.f.ReadAt(buf[:], int64(id)*Size)
	return err
}

func (d *FileDevice) WriteBlock(id ID, buf *Bytes) error {
	if id >= d.blocks {
		return fmt.Errorf("block.FileDevice: id %d out of range (have %d blocks)", id, d.blocks)
	}
	_, err := d.f.WriteAt(buf[:], int64(id)*Size)
	return err
}

func (d *FileDevice) BlockCount() ID { return d.blocks }

func (d *FileDevice) Close() error {
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}

// MemDevice is an in-memory Device, useful for tests and for an entirely
// ephemeral filesystem.
type MemDevice struct {
	blocks []Bytes
}

func NewMemDevice(blockCount ID) *MemDevice {
	return &MemDevice{blocks: make([]Bytes, blockCount)}
}

func (d *MemDevice) ReadBlock(id ID, buf *Bytes) error {
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("block.MemDevice: id %d out of range (have %d blocks)", id, len(d.blocks))
	}
	*buf = d.blocks[id]
	return nil
}

func (d *MemDevice) WriteBlock(id ID, buf *Bytes) error {
	if int(id) >= len(d.blocks) {
		return fmt.Errorf("block.MemDevice: id %d out of range (have %d blocks)", id, len(d.blocks))
	}
	d.blocks[id] = *buf
	return nil
}

func (d *MemDevice) BlockCount() ID { return ID(len(d.blocks)) }

func (d *MemDevice) Close() error { return nil }
