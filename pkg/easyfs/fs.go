package easyfs

import (
	"fmt"

	"github.com/easykernel/easykernel/pkg/block"
	"github.com/jacobsa/syncutil"
)

// RootInodeID is the inode id of the filesystem root directory.
const RootInodeID InodeID = 0

// EasyFileSystem owns the superblock, bitmaps, and allocation bookkeeping
// for an EasyFS image; it does not itself expose file operations — that's
// vfs.Inode's job.
type EasyFileSystem struct {
	mu syncutil.InvariantMutex // GUARDED_BY(mu): everything below

	cache *block.Cache
	sb    Superblock

	inodeBitmap bitmap
	dataBitmap  bitmap

	inodeAreaStart ID
	dataAreaStart  ID
}

func (fs *EasyFileSystem) checkInvariants() {
	if !fs.sb.Valid() {
		panic("easyfs.EasyFileSystem: invalid superblock magic")
	}
}

// Create formats a fresh EasyFS image on dev: writes the superblock, sizes
// every region, zeroes all blocks, and creates inode 0 as the root
// directory.
func Create(dev block.Device, totalBlocks uint32, inodeBitmapBlocks uint32) (*EasyFileSystem, error) {
	cache := block.NewCache(dev)

	inodeBM := newBitmap(1, inodeBitmapBlocks)
	inodeNum := inodeBM.capacity()
	inodeAreaBlocks := (inodeNum*DiskInodeWireSize + block.Size - 1) / block.Size

	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks
	if totalBlocks < 1+inodeTotalBlocks {
		return nil, fmt.Errorf("easyfs.Create: %d blocks too small for %d inode blocks", totalBlocks, inodeTotalBlocks)
	}
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks

	dataBitmapBlocks := (dataTotalBlocks + bitsPerBlock) / (bitsPerBlock + 1)
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	inodeAreaStart := ID(1 + inodeBitmapBlocks)
	dataBitmapStart := inodeAreaStart + ID(inodeAreaBlocks)
	dataAreaStart := dataBitmapStart + ID(dataBitmapBlocks)

	fs := &EasyFileSystem{
		cache: cache,
		sb: Superblock{
			Magic:             EasyFSMagic,
			TotalBlocks:       totalBlocks,
			InodeBitmapBlocks: inodeBitmapBlocks,
			InodeAreaBlocks:   inodeAreaBlocks,
			DataBitmapBlocks:  dataBitmapBlocks,
			DataAreaBlocks:    dataAreaBlocks,
		},
		inodeBitmap:    inodeBM,
		dataBitmap:     newBitmap(dataBitmapStart, dataBitmapBlocks),
		inodeAreaStart: inodeAreaStart,
		dataAreaStart:  dataAreaStart,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	// Zero every block in the image.
	var zero block.Bytes
	for i := ID(0); i < ID(totalBlocks); i++ {
		if err := cache.Modify(i, func(buf *block.Bytes) { *buf = zero }); err != nil {
			return nil, err
		}
	}

	// Write the superblock.
	if err := cache.Modify(0, func(buf *block.Bytes) { fs.sb.marshal(buf) }); err != nil {
		return nil, err
	}

	// Allocate and initialize the root directory inode.
	rootID, ok := fs.inodeBitmap.alloc(cache)
	if !ok || InodeID(rootID) != RootInodeID {
		return nil, fmt.Errorf("easyfs.Create: failed to allocate root inode")
	}
	blockID, offset := fs.GetDiskInodePos(RootInodeID)
	if err := cache.Modify(blockID, func(buf *block.Bytes) {
		var root DiskInode
		root.Initialize(TypeDirectory)
		root.marshal(buf[offset : offset+DiskInodeWireSize])
	}); err != nil {
		return nil, err
	}

	if err := cache.SyncAll(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Open reads the superblock from an existing EasyFS image and reconstructs
// allocator state.
func Open(dev block.Device) (*EasyFileSystem, error) {
	cache := block.NewCache(dev)

	var sb Superblock
	if err := cache.Read(0, func(buf *block.Bytes) { sb.unmarshal(buf) }); err != nil {
		return nil, err
	}
	if !sb.Valid() {
		return nil, fmt.Errorf("easyfs.Open: bad magic 0x%x", sb.Magic)
	}

	inodeAreaStart := ID(1 + sb.InodeBitmapBlocks)
	dataBitmapStart := inodeAreaStart + ID(sb.InodeAreaBlocks)
	dataAreaStart := dataBitmapStart + ID(sb.DataBitmapBlocks)

	fs := &EasyFileSystem{
		cache:          cache,
		sb:             sb,
		inodeBitmap:    newBitmap(1, sb.InodeBitmapBlocks),
		dataBitmap:     newBitmap(dataBitmapStart, sb.DataBitmapBlocks),
		inodeAreaStart: inodeAreaStart,
		dataAreaStart:  dataAreaStart,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs, nil
}

// Cache exposes the underlying block cache, for vfs.Inode.
func (fs *EasyFileSystem) Cache() *block.Cache { return fs.cache }

// Lock acquires the whole-filesystem lock. Every multi-step operation that
// touches allocation state (create, link_at, unlink_at, write growth, clear)
// must hold it for the duration of the operation, not just each individual
// allocator call — otherwise two goroutines could interleave a
// find-then-create race. AllocInode/AllocData/DeallocData below assume the
// caller already holds this lock (LOCKS_REQUIRED(fs), not reentrant).
func (fs *EasyFileSystem) Lock() { fs.mu.Lock() }

// Unlock releases the whole-filesystem lock acquired by Lock.
func (fs *EasyFileSystem) Unlock() { fs.mu.Unlock() }

// GetDiskInodePos returns the (block id, byte offset) of inode id's
// on-disk record.
func (fs *EasyFileSystem) GetDiskInodePos(id InodeID) (ID, uint32) {
	blockID := fs.inodeAreaStart + ID(uint32(id)/InodesPerBlock)
	offset := (uint32(id) % InodesPerBlock) * DiskInodeWireSize
	return blockID, offset
}

// InodeIDAt inverts GetDiskInodePos, recovering the inode id stored at the
// given (block id, byte offset) pair.
func (fs *EasyFileSystem) InodeIDAt(blockID ID, offset uint32) InodeID {
	slot := offset / DiskInodeWireSize
	return InodeID((uint32(blockID-fs.inodeAreaStart))*InodesPerBlock + slot)
}

// AllocInode reserves a fresh inode id. LOCKS_REQUIRED(fs).
func (fs *EasyFileSystem) AllocInode() (InodeID, error) {
	id, ok := fs.inodeBitmap.alloc(fs.cache)
	if !ok {
		return 0, fmt.Errorf("easyfs: inode bitmap exhausted")
	}
	return InodeID(id), nil
}

// AllocData reserves a fresh data (or index) block and returns its absolute
// block id (the bitmap index offset by the start of the data region).
// LOCKS_REQUIRED(fs).
func (fs *EasyFileSystem) AllocData() (ID, error) {
	bit, ok := fs.dataBitmap.alloc(fs.cache)
	if !ok {
		return 0, fmt.Errorf("easyfs: data bitmap exhausted")
	}
	return fs.dataAreaStart + ID(bit), nil
}

// DeallocData returns a data/index block to the free pool. LOCKS_REQUIRED(fs).
func (fs *EasyFileSystem) DeallocData(id ID) error {
	if id < fs.dataAreaStart {
		return fmt.Errorf("easyfs: block %d is not in the data region", id)
	}
	var zero block.Bytes
	if err := fs.cache.Modify(id, func(buf *block.Bytes) { *buf = zero }); err != nil {
		return err
	}
	return fs.dataBitmap.dealloc(fs.cache, uint32(id-fs.dataAreaStart))
}

// SyncAll flushes the block cache to the device.
func (fs *EasyFileSystem) SyncAll() error { return fs.cache.SyncAll() }

func (fs *EasyFileSystem) String() string { return fs.sb.String() }
