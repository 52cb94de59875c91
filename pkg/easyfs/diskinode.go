package easyfs

import (
	"encoding/binary"

	"github.com/easykernel/easykernel/pkg/block"
)

// DirectCount is the number of direct block pointers carried inline in a
// DiskInode.
const DirectCount = 28

// IndirectEntries is the number of u32 block ids that fit in one indirect
// block (block.Size / 4).
const IndirectEntries = block.Size / 4

// IndirectBound is the highest (exclusive) data-block index reachable
// through direct + one level of indirection.
const IndirectBound = DirectCount + IndirectEntries

// DiskInode is the fixed-size on-disk inode record: byte size, type, 28
// direct block ids, one indirect-1 block id, one indirect-2 block id.
type DiskInode struct {
	Size      uint32
	Type      DiskInodeType
	Direct    [DirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
}

// DiskInodeWireSize is the packed on-disk size of a DiskInode, in
// declaration order.
const DiskInodeWireSize = 4 + 4 + DirectCount*4 + 4 + 4

// InodesPerBlock is how many DiskInode records fit in one block.
const InodesPerBlock = block.Size / DiskInodeWireSize

// Initialize resets the inode to an empty inode of the given type.
func (d *DiskInode) Initialize(t DiskInodeType) {
	*d = DiskInode{Type: t}
}

func (d *DiskInode) IsDir() bool  { return d.Type == TypeDirectory }
func (d *DiskInode) IsFile() bool { return d.Type == TypeFile }

func (d *DiskInode) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], d.Size)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(d.Type))
	off := 8
	for _, id := range d.Direct {
		binary.LittleEndian.PutUint32(buf[off:off+4], id)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect1)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], d.Indirect2)
}

func (d *DiskInode) unmarshal(buf []byte) {
	d.Size = binary.LittleEndian.Uint32(buf[0:4])
	d.Type = DiskInodeType(binary.LittleEndian.Uint32(buf[4:8]))
	off := 8
	for i := range d.Direct {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	d.Indirect1 = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	d.Indirect2 = binary.LittleEndian.Uint32(buf[off : off+4])
}

// MarshalAt packs d into buf at the given byte offset, the layout used for
// one inode-table slot within a shared block.
func (d *DiskInode) MarshalAt(buf *block.Bytes, offset uint32) {
	d.marshal(buf[offset : offset+DiskInodeWireSize])
}

// UnmarshalAt reads the inode packed into buf at the given byte offset.
func (d *DiskInode) UnmarshalAt(buf *block.Bytes, offset uint32) {
	d.unmarshal(buf[offset : offset+DiskInodeWireSize])
}

// dataBlocks returns the number of data blocks (excluding indirect index
// blocks) needed to hold size bytes.
func dataBlocks(size uint32) uint32 {
	return (size + block.Size - 1) / block.Size
}

// indexBlocksFor returns the number of indirect index blocks (indirect1,
// indirect2, and the indirect1 blocks it points to) needed to address db
// data blocks.
func indexBlocksFor(db uint32) uint32 {
	var idx uint32
	if db > DirectCount {
		idx++ // indirect1 block itself
	}
	if db > IndirectBound {
		idx++ // indirect2 block itself
		extra := db - IndirectBound
		idx += (extra + IndirectEntries - 1) / IndirectEntries // indirect1 blocks under indirect2
	}
	return idx
}

// TotalBlocks returns the total number of blocks (data + index) reachable
// through direct + indirect chains for a file of the given size.
func TotalBlocks(size uint32) uint32 {
	db := dataBlocks(size)
	return db + indexBlocksFor(db)
}

// BlocksNumNeeded returns how many additional blocks must be allocated to
// grow this inode to newSize.
func (d *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	if newSize <= d.Size {
		return 0
	}
	return TotalBlocks(newSize) - TotalBlocks(d.Size)
}

// blockCache is the minimal surface DiskInode needs from block.Cache, kept
// as an interface so easyfs doesn't re-export block's concrete type in its
// own API surface unnecessarily.
type blockCache interface {
	Read(id block.ID, f func(buf *block.Bytes)) error
	Modify(id block.ID, f func(buf *block.Bytes)) error
}

// getBlockID resolves the inner block index (0-based, counting only data
// blocks) to its on-disk block id, walking direct/indirect1/indirect2.
func (d *DiskInode) getBlockID(inner uint32, cache blockCache) block.ID {
	switch {
	case inner < DirectCount:
		return block.ID(d.Direct[inner])
	case inner < IndirectBound:
		idx := inner - DirectCount
		var id uint32
		cache.Read(block.ID(d.Indirect1), func(buf *block.Bytes) {
			id = binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4])
		})
		return block.ID(id)
	default:
		idx := inner - IndirectBound
		outer := idx / IndirectEntries
		slot := idx % IndirectEntries
		var indirect1 uint32
		cache.Read(block.ID(d.Indirect2), func(buf *block.Bytes) {
			indirect1 = binary.LittleEndian.Uint32(buf[outer*4 : outer*4+4])
		})
		var id uint32
		cache.Read(block.ID(indirect1), func(buf *block.Bytes) {
			id = binary.LittleEndian.Uint32(buf[slot*4 : slot*4+4])
		})
		return block.ID(id)
	}
}

// setBlockID is the mutating counterpart of getBlockID, allocating
// indirect1/indirect2 meta blocks from ids the first time they're needed.
func (d *DiskInode) setBlockID(inner uint32, id block.ID, ids *idQueue, cache blockCache) {
	switch {
	case inner < DirectCount:
		d.Direct[inner] = uint32(id)
	case inner < IndirectBound:
		idx := inner - DirectCount
		if d.Indirect1 == 0 {
			d.Indirect1 = uint32(ids.next())
		}
		cache.Modify(block.ID(d.Indirect1), func(buf *block.Bytes) {
			binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], uint32(id))
		})
	default:
		idx := inner - IndirectBound
		outer := idx / IndirectEntries
		slot := idx % IndirectEntries
		if d.Indirect2 == 0 {
			d.Indirect2 = uint32(ids.next())
		}
		var indirect1 uint32
		cache.Modify(block.ID(d.Indirect2), func(buf *block.Bytes) {
			indirect1 = binary.LittleEndian.Uint32(buf[outer*4 : outer*4+4])
			if indirect1 == 0 {
				indirect1 = uint32(ids.next())
				binary.LittleEndian.PutUint32(buf[outer*4:outer*4+4], indirect1)
			}
		})
		cache.Modify(block.ID(indirect1), func(buf *block.Bytes) {
			binary.LittleEndian.PutUint32(buf[slot*4:slot*4+4], uint32(id))
		})
	}
}

// idQueue is a small FIFO over freshly allocated block ids, consumed by
// setBlockID in the order data blocks (then the meta blocks they first
// require) are assigned.
type idQueue struct {
	ids []block.ID
	pos int
}

func (q *idQueue) next() block.ID {
	id := q.ids[q.pos]
	q.pos++
	return id
}

// IncreaseSize grows the inode to newSize, consuming freshly allocated
// block ids (exactly BlocksNumNeeded(newSize) of them, both data and any
// newly required index blocks) in direct → indirect1 → indirect2 order.
func (d *DiskInode) IncreaseSize(newSize uint32, newIDs []block.ID, cache blockCache) {
	if newSize <= d.Size {
		return
	}

	oldDB := dataBlocks(d.Size)
	newDB := dataBlocks(newSize)
	q := &idQueue{ids: newIDs}

	for i := oldDB; i < newDB; i++ {
		d.setBlockID(i, q.next(), q, cache)
	}

	d.Size = newSize
}

// ReadAt reads into buf starting at offset, stopping at EOF. Returns the
// number of bytes read.
func (d *DiskInode) ReadAt(offset uint32, buf []byte, cache blockCache) int {
	if offset >= d.Size {
		return 0
	}
	end := offset + uint32(len(buf))
	if end > d.Size {
		end = d.Size
	}

	var read int
	for remaining := end - offset; remaining > 0; {
		blockIdx := (offset + uint32(read)) / block.Size
		innerStart := (offset + uint32(read)) % block.Size
		n := block.Size - innerStart
		if n > remaining {
			n = remaining
		}

		id := d.getBlockID(blockIdx, cache)
		cache.Read(id, func(b *block.Bytes) {
			copy(buf[read:read+int(n)], b[innerStart:innerStart+n])
		})

		read += int(n)
		remaining -= n
	}
	return read
}

// WriteAt writes buf at offset. The caller is responsible for having grown
// the inode (via IncreaseSize) so that [offset, offset+len(buf)) is already
// addressable. Returns the number of bytes written.
func (d *DiskInode) WriteAt(offset uint32, buf []byte, cache blockCache) int {
	end := offset + uint32(len(buf))
	if end > d.Size {
		end = d.Size
	}
	if end <= offset {
		return 0
	}

	var written int
	for remaining := end - offset; remaining > 0; {
		blockIdx := (offset + uint32(written)) / block.Size
		innerStart := (offset + uint32(written)) % block.Size
		n := block.Size - innerStart
		if n > remaining {
			n = remaining
		}

		id := d.getBlockID(blockIdx, cache)
		cache.Modify(id, func(b *block.Bytes) {
			copy(b[innerStart:innerStart+n], buf[written:written+int(n)])
		})

		written += int(n)
		remaining -= n
	}
	return written
}

// ClearSize truncates the inode to zero, returning every block id (data and
// index blocks alike) that is now free for the caller to return to the data
// bitmap. The data bitmap backs both data and index blocks uniformly, so a
// single free list covers both.
func (d *DiskInode) ClearSize(cache blockCache) []block.ID {
	var freed []block.ID

	db := dataBlocks(d.Size)
	for i := uint32(0); i < db && i < DirectCount; i++ {
		if d.Direct[i] != 0 {
			freed = append(freed, block.ID(d.Direct[i]))
			d.Direct[i] = 0
		}
	}

	if db > DirectCount {
		end := db
		if end > IndirectBound {
			end = IndirectBound
		}
		for i := uint32(DirectCount); i < end; i++ {
			idx := i - DirectCount
			var id uint32
			cache.Read(block.ID(d.Indirect1), func(buf *block.Bytes) {
				id = binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4])
			})
			if id != 0 {
				freed = append(freed, block.ID(id))
			}
		}
		freed = append(freed, block.ID(d.Indirect1))
		d.Indirect1 = 0
	}

	if db > IndirectBound {
		remaining := db - IndirectBound
		numOuter := (remaining + IndirectEntries - 1) / IndirectEntries
		for outer := uint32(0); outer < numOuter; outer++ {
			var indirect1 uint32
			cache.Read(block.ID(d.Indirect2), func(buf *block.Bytes) {
				indirect1 = binary.LittleEndian.Uint32(buf[outer*4 : outer*4+4])
			})
			if indirect1 == 0 {
				continue
			}

			limit := uint32(IndirectEntries)
			if outer == numOuter-1 && remaining%IndirectEntries != 0 {
				limit = remaining % IndirectEntries
			}
			for slot := uint32(0); slot < limit; slot++ {
				var id uint32
				cache.Read(block.ID(indirect1), func(buf *block.Bytes) {
					id = binary.LittleEndian.Uint32(buf[slot*4 : slot*4+4])
				})
				if id != 0 {
					freed = append(freed, block.ID(id))
				}
			}
			freed = append(freed, block.ID(indirect1))
		}
		freed = append(freed, block.ID(d.Indirect2))
		d.Indirect2 = 0
	}

	d.Size = 0
	return freed
}
