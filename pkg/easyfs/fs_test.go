package easyfs

import (
	"testing"

	"github.com/easykernel/easykernel/pkg/block"
	"github.com/kylelemons/godebug/pretty"
)

func newTestFS(t *testing.T) *EasyFileSystem {
	t.Helper()
	dev := block.NewMemDevice(512)
	fs, err := Create(dev, 512, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return fs
}

func TestCreateFormatsRootDirectory(t *testing.T) {
	fs := newTestFS(t)

	blockID, offset := fs.GetDiskInodePos(RootInodeID)
	var d DiskInode
	fs.Cache().Read(blockID, func(buf *block.Bytes) { d.UnmarshalAt(buf, offset) })

	if !d.IsDir() {
		t.Fatal("root inode should be a directory")
	}
	if d.Size != 0 {
		t.Fatalf("fresh root size = %d, want 0", d.Size)
	}
}

func TestAllocInodeAndDataAreDistinct(t *testing.T) {
	fs := newTestFS(t)
	fs.Lock()
	defer fs.Unlock()

	id1, err := fs.AllocInode()
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	id2, err := fs.AllocInode()
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if id1 == id2 {
		t.Fatal("two AllocInode calls returned the same id")
	}

	d1, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData: %v", err)
	}
	d2, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData: %v", err)
	}
	if d1 == d2 {
		t.Fatal("two AllocData calls returned the same id")
	}
}

func TestDeallocDataReturnsBlockToPool(t *testing.T) {
	fs := newTestFS(t)
	fs.Lock()
	defer fs.Unlock()

	id, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData: %v", err)
	}
	if err := fs.DeallocData(id); err != nil {
		t.Fatalf("DeallocData: %v", err)
	}

	id2, err := fs.AllocData()
	if err != nil {
		t.Fatalf("AllocData after dealloc: %v", err)
	}
	if id2 != id {
		t.Fatalf("expected reallocation of freed block %d, got %d", id, id2)
	}
}

func TestOpenReconstructsSuperblock(t *testing.T) {
	dev := block.NewMemDevice(512)
	if _, err := Create(dev, 512, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}

	fs, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !fs.sb.Valid() {
		t.Fatal("opened filesystem has an invalid superblock")
	}
}

func TestOpenReconstructsIdenticalLayout(t *testing.T) {
	dev := block.NewMemDevice(512)
	created, err := Create(dev, 512, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reopened, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if diff := pretty.Compare(created.sb, reopened.sb); diff != "" {
		t.Fatalf("reopened superblock differs from the one Create wrote:\n%s", diff)
	}
}
