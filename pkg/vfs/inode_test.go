package vfs

import (
	"bytes"
	"testing"

	"github.com/easykernel/easykernel/pkg/block"
	"github.com/easykernel/easykernel/pkg/easyfs"
)

func newTestRoot(t *testing.T) *Inode {
	t.Helper()
	dev := block.NewMemDevice(512)
	fs, err := easyfs.Create(dev, 512, 1)
	if err != nil {
		t.Fatalf("easyfs.Create: %v", err)
	}
	return Root(fs)
}

func TestCreateFindLs(t *testing.T) {
	root := newTestRoot(t)

	if root.Find("a.txt") != nil {
		t.Fatal("Find on empty directory should return nil")
	}

	f := root.Create("a.txt")
	if f == nil {
		t.Fatal("Create should succeed for a new name")
	}
	if root.Create("a.txt") != nil {
		t.Fatal("Create should return nil for a name that already exists")
	}

	if got := root.Find("a.txt"); got == nil || got.InodeID() != f.InodeID() {
		t.Fatal("Find should resolve the created name to the same inode")
	}

	names := root.Ls()
	if len(names) != 1 || names[0] != "a.txt" {
		t.Fatalf("Ls = %v, want [a.txt]", names)
	}
}

func TestWriteAtReadAtRoundTrip(t *testing.T) {
	root := newTestRoot(t)
	f := root.Create("data.bin")

	payload := bytes.Repeat([]byte("xyzw"), 300) // spans multiple data blocks
	n := f.WriteAt(0, payload)
	if n != len(payload) {
		t.Fatalf("WriteAt returned %d, want %d", n, len(payload))
	}

	got := make([]byte, len(payload))
	n = f.ReadAt(0, got)
	if n != len(payload) {
		t.Fatalf("ReadAt returned %d, want %d", n, len(payload))
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("read back bytes did not match what was written")
	}
}

func TestLinkAtCreatesHardLinkWithSharedInode(t *testing.T) {
	root := newTestRoot(t)
	f := root.Create("orig")
	f.WriteAt(0, []byte("hello"))

	root.LinkAt("orig", "alias")

	alias := root.Find("alias")
	if alias == nil {
		t.Fatal("alias should resolve after LinkAt")
	}
	if alias.InodeID() != f.InodeID() {
		t.Fatal("LinkAt should point the new name at the same inode")
	}

	got := make([]byte, 5)
	alias.ReadAt(0, got)
	if string(got) != "hello" {
		t.Fatalf("reading through the alias got %q, want %q", got, "hello")
	}

	_, nlink, found := root.GetFstat("orig")
	if !found || nlink != 2 {
		t.Fatalf("GetFstat nlink = %d, found=%v, want 2, true", nlink, found)
	}
}

func TestUnlinkAtRemovesEntryAndCompacts(t *testing.T) {
	root := newTestRoot(t)
	root.Create("a")
	root.Create("b")
	root.Create("c")

	if !root.UnlinkAt("b") {
		t.Fatal("UnlinkAt should report true for an existing name")
	}
	if root.UnlinkAt("b") {
		t.Fatal("UnlinkAt should report false for an already-removed name")
	}

	names := root.Ls()
	if len(names) != 2 {
		t.Fatalf("Ls after unlink = %v, want 2 entries", names)
	}
	for _, n := range names {
		if n == "b" {
			t.Fatal("unlinked name still present after compaction")
		}
	}
	if root.Find("a") == nil || root.Find("c") == nil {
		t.Fatal("unrelated entries should survive UnlinkAt's compaction")
	}
}

func TestClearFreesDataBlocks(t *testing.T) {
	root := newTestRoot(t)
	f := root.Create("big")
	f.WriteAt(0, bytes.Repeat([]byte("z"), 2000))

	f.Clear()

	got := make([]byte, 10)
	n := f.ReadAt(0, got)
	if n != 0 {
		t.Fatalf("ReadAt after Clear returned %d bytes, want 0", n)
	}
}
