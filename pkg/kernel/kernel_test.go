package kernel

import (
	"path/filepath"
	"testing"

	"github.com/easykernel/easykernel/pkg/pagetable"
	"github.com/easykernel/easykernel/pkg/task"
	"github.com/jacobsa/timeutil"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		DiskPath:          filepath.Join(t.TempDir(), "test.img"),
		BlockCount:        512,
		InodeBitmapBlocks: 1,
		FrameCount:        pagetable.Frame(64),
		Format:            true,
	}
}

func TestBootFormatsFreshImage(t *testing.T) {
	k, err := BootWithClock(testConfig(t), timeutil.RealClock())
	if err != nil {
		t.Fatalf("BootWithClock: %v", err)
	}
	defer k.Shutdown()

	if k.Manager == nil || k.Loader == nil {
		t.Fatal("Boot should populate Manager and Loader")
	}
}

func TestSpawnFirstProcessBecomesInit(t *testing.T) {
	k, err := BootWithClock(testConfig(t), timeutil.RealClock())
	if err != nil {
		t.Fatalf("BootWithClock: %v", err)
	}
	defer k.Shutdown()

	done := make(chan struct{})
	k.Loader.Register("init", func(t *task.TCB) { <-done })

	pcb, _, err := k.Spawn("init")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if k.Manager.Init != pcb {
		t.Fatal("first spawned process should become the manager's Init")
	}
	close(done)
}

func TestSpawnUnknownProgramFails(t *testing.T) {
	k, err := BootWithClock(testConfig(t), timeutil.RealClock())
	if err != nil {
		t.Fatalf("BootWithClock: %v", err)
	}
	defer k.Shutdown()

	if _, _, err := k.Spawn("nope"); err == nil {
		t.Fatal("Spawn of an unregistered program should fail")
	}
}

func TestReopenExistingImageWithoutFormat(t *testing.T) {
	cfg := testConfig(t)
	k1, err := BootWithClock(cfg, timeutil.RealClock())
	if err != nil {
		t.Fatalf("first boot: %v", err)
	}
	if err := k1.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	cfg.Format = false
	k2, err := BootWithClock(cfg, timeutil.RealClock())
	if err != nil {
		t.Fatalf("reopen existing image: %v", err)
	}
	defer k2.Shutdown()
}
