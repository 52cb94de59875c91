// Package easyfs implements the EasyFS on-disk layout: superblock, inode
// bitmap, data bitmap, inode table, and data region, plus inode and
// data-block allocation.
package easyfs

import (
	"encoding/binary"
	"fmt"

	"github.com/easykernel/easykernel/pkg/block"
)

// EasyFSMagic identifies a valid EasyFS superblock.
const EasyFSMagic uint32 = 0x3b800001

// InodeID identifies an inode by its position in the inode table.
type InodeID uint32

// DiskInodeType distinguishes a file inode from a directory inode.
type DiskInodeType uint32

const (
	TypeFile DiskInodeType = iota
	TypeDirectory
)

func (t DiskInodeType) String() string {
	if t == TypeDirectory {
		return "Directory"
	}
	return "File"
}

// Superblock is the first block of an EasyFS image.
type Superblock struct {
	Magic            uint32
	TotalBlocks      uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks  uint32
	DataBitmapBlocks uint32
	DataAreaBlocks   uint32
}

const superblockWireSize = 4 * 6

func (s *Superblock) marshal(buf *block.Bytes) {
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], s.InodeBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[12:16], s.InodeAreaBlocks)
	binary.LittleEndian.PutUint32(buf[16:20], s.DataBitmapBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], s.DataAreaBlocks)
}

func (s *Superblock) unmarshal(buf *block.Bytes) {
	s.Magic = binary.LittleEndian.Uint32(buf[0:4])
	s.TotalBlocks = binary.LittleEndian.Uint32(buf[4:8])
	s.InodeBitmapBlocks = binary.LittleEndian.Uint32(buf[8:12])
	s.InodeAreaBlocks = binary.LittleEndian.Uint32(buf[12:16])
	s.DataBitmapBlocks = binary.LittleEndian.Uint32(buf[16:20])
	s.DataAreaBlocks = binary.LittleEndian.Uint32(buf[20:24])
}

// Valid reports whether the magic number identifies a well-formed image.
func (s *Superblock) Valid() bool { return s.Magic == EasyFSMagic }

func (s *Superblock) String() string {
	return fmt.Sprintf(
		"EasyFS(blocks=%d, inode_bitmap=%d, inode_area=%d, data_bitmap=%d, data_area=%d)",
		s.TotalBlocks, s.InodeBitmapBlocks, s.InodeAreaBlocks, s.DataBitmapBlocks, s.DataAreaBlocks)
}
