package easyfs

import (
	"fmt"

	"github.com/easykernel/easykernel/pkg/block"
)

// bitsPerBlock is the number of allocation bits packed into one block.
const bitsPerBlock = block.Size * 8

// bitmap is a first-fit bit-scan allocator over a contiguous run of blocks.
type bitmap struct {
	start ID // first block of the bitmap region
	blocks uint32
}

// ID is a block.ID alias used within easyfs for readability at call sites
// that are clearly talking about on-disk block positions.
type ID = block.ID

func newBitmap(start ID, blocks uint32) bitmap {
	return bitmap{start: start, blocks: blocks}
}

func (b *bitmap) capacity() uint32 { return b.blocks * bitsPerBlock }

// alloc finds the first clear bit, sets it, and returns its global index.
// Returns (0, false) if the bitmap is full.
func (b *bitmap) alloc(cache *block.Cache) (uint32, bool) {
	for blockOff := uint32(0); blockOff < b.blocks; blockOff++ {
		var found = -1
		var bitInBlock int
		err := cache.Modify(b.start+ID(blockOff), func(buf *block.Bytes) {
			for byteIdx := 0; byteIdx < block.Size; byteIdx++ {
				if buf[byteIdx] == 0xff {
					continue
				}
				for bit := 0; bit < 8; bit++ {
					if buf[byteIdx]&(1<<uint(bit)) == 0 {
						buf[byteIdx] |= 1 << uint(bit)
						found = byteIdx
						bitInBlock = bit
						return
					}
				}
			}
		})
		if err != nil {
			return 0, false
		}
		if found >= 0 {
			idx := blockOff*bitsPerBlock + uint32(found)*8 + uint32(bitInBlock)
			return idx, true
		}
	}
	return 0, false
}

// dealloc clears the bit at the given global index.
func (b *bitmap) dealloc(cache *block.Cache, bit uint32) error {
	if bit >= b.capacity() {
		return fmt.Errorf("easyfs: bitmap dealloc out of range: %d", bit)
	}

	blockOff := bit / bitsPerBlock
	within := bit % bitsPerBlock
	byteIdx := within / 8
	bitIdx := within % 8

	var wasSet bool
	err := cache.Modify(b.start+ID(blockOff), func(buf *block.Bytes) {
		mask := byte(1 << bitIdx)
		wasSet = buf[byteIdx]&mask != 0
		buf[byteIdx] &^= mask
	})
	if err != nil {
		return err
	}
	if !wasSet {
		return fmt.Errorf("easyfs: double-free of bit %d", bit)
	}
	return nil
}
