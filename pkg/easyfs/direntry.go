package easyfs

import "encoding/binary"

// NameLimit is the longest name (excluding the implicit NUL terminator)
// storable in a DirEntry.
const NameLimit = 27

// DirEntSize is the fixed packed size of a DirEntry: 27-byte zero-padded
// name + 4-byte little-endian inode id + 1 reserved byte.
const DirEntSize = 32

// DirEntry is one record in a directory inode's data.
type DirEntry struct {
	Name    string
	InodeID InodeID
}

// Marshal packs e into the fixed 32-byte wire format.
func (e DirEntry) Marshal() [DirEntSize]byte {
	var buf [DirEntSize]byte
	n := copy(buf[:NameLimit], e.Name)
	_ = n
	binary.LittleEndian.PutUint32(buf[27:31], uint32(e.InodeID))
	// buf[31] is the reserved pad byte, left zero.
	return buf
}

// UnmarshalDirEntry unpacks a 32-byte wire record.
func UnmarshalDirEntry(buf []byte) DirEntry {
	end := 0
	for end < NameLimit && buf[end] != 0 {
		end++
	}
	return DirEntry{
		Name:    string(buf[:end]),
		InodeID: InodeID(binary.LittleEndian.Uint32(buf[27:31])),
	}
}
