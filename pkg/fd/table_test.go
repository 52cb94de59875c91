package fd

import "testing"

type fakeFile struct {
	closed bool
}

func (f *fakeFile) Read(buf []byte) (int, error)  { return 0, nil }
func (f *fakeFile) Write(buf []byte) (int, error) { return len(buf), nil }
func (f *fakeFile) Close() error                  { f.closed = true; return nil }

func TestInstallGetClose(t *testing.T) {
	tbl := New()
	f := &fakeFile{}

	n := tbl.Install(f)
	if got := tbl.Get(n); got != f {
		t.Fatalf("Get(%d) = %v, want %v", n, got, f)
	}

	if !tbl.Close(n) {
		t.Fatal("Close should report true for an open descriptor")
	}
	if !f.closed {
		t.Fatal("underlying File should be closed once refcount hits zero")
	}
	if tbl.Get(n) != nil {
		t.Fatal("Get after Close should return nil")
	}
	if tbl.Close(n) {
		t.Fatal("second Close of the same descriptor should report false")
	}
}

func TestInstallReusesFreedSlot(t *testing.T) {
	tbl := New()
	a := tbl.Install(&fakeFile{})
	tbl.Close(a)
	b := tbl.Install(&fakeFile{})
	if b != a {
		t.Fatalf("expected slot reuse: got %d, want %d", b, a)
	}
}

func TestForkSharesEntriesByReference(t *testing.T) {
	tbl := New()
	f := &fakeFile{}
	n := tbl.Install(f)

	child := tbl.Fork()
	if child.Get(n) != f {
		t.Fatal("forked table should alias the same File")
	}

	// Closing in the child must not close the underlying file while the
	// parent still holds a reference.
	child.Close(n)
	if f.closed {
		t.Fatal("File closed while parent still references it")
	}
	if tbl.Get(n) != f {
		t.Fatal("parent's descriptor should remain open after child closes its own")
	}

	tbl.Close(n)
	if !f.closed {
		t.Fatal("File should close once every reference is gone")
	}
}
