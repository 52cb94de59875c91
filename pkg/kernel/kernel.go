// Package kernel wires together the block device, EasyFS filesystem, task
// manager, and program loader into one bootable unit, the way a real
// kernel's init sequence brings its subsystems up in dependency order. It
// is the only package cmd/easykernel imports directly.
package kernel

import (
	"fmt"
	"os"

	"github.com/easykernel/easykernel/internal/klog"
	"github.com/easykernel/easykernel/pkg/block"
	"github.com/easykernel/easykernel/pkg/easyfs"
	"github.com/easykernel/easykernel/pkg/loader"
	"github.com/easykernel/easykernel/pkg/task"
	"github.com/easykernel/easykernel/pkg/vfs"
	"github.com/jacobsa/timeutil"
)

// Kernel owns every long-lived subsystem: the backing device, the
// filesystem mounted on it, the task manager and its scheduler, and the
// program loader new processes are spawned from.
type Kernel struct {
	cfg Config

	dev block.Device
	fs  *easyfs.EasyFileSystem

	Loader  *loader.Loader
	Manager *task.Manager
}

// Boot brings up a Kernel from cfg: opens (or formats) the disk image,
// mounts EasyFS on it, and constructs a task manager whose every freshly
// spawned process can see the mounted filesystem root.
func Boot(cfg Config) (*Kernel, error) {
	return BootWithClock(cfg, timeutil.RealClock())
}

// BootWithClock is Boot with an injectable clock, for tests that need
// control over GET_TIME/start_time_us accounting.
func BootWithClock(cfg Config, clock timeutil.Clock) (*Kernel, error) {
	dev, fs, err := mount(cfg)
	if err != nil {
		return nil, err
	}

	mgr := task.NewManager(clock, cfg.FrameCount)
	mgr.Root = vfs.Root(fs)

	k := &Kernel{
		cfg:     cfg,
		dev:     dev,
		fs:      fs,
		Loader:  loader.New(),
		Manager: mgr,
	}
	return k, nil
}

func mount(cfg Config) (block.Device, *easyfs.EasyFileSystem, error) {
	_, statErr := os.Stat(cfg.DiskPath)
	needsFormat := cfg.Format || os.IsNotExist(statErr)

	if needsFormat {
		dev, err := block.NewFileDevice(cfg.DiskPath, block.ID(cfg.BlockCount))
		if err != nil {
			return nil, nil, fmt.Errorf("kernel: open disk image: %w", err)
		}
		fs, err := easyfs.Create(dev, cfg.BlockCount, cfg.InodeBitmapBlocks)
		if err != nil {
			dev.Close()
			return nil, nil, fmt.Errorf("kernel: format disk image: %w", err)
		}
		klog.Debug().Printf("formatted %s: %s", cfg.DiskPath, fs)
		return dev, fs, nil
	}

	dev, err := block.NewFileDevice(cfg.DiskPath, block.ID(cfg.BlockCount))
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: open disk image: %w", err)
	}
	fs, err := easyfs.Open(dev)
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("kernel: open filesystem: %w", err)
	}
	klog.Debug().Printf("mounted %s: %s", cfg.DiskPath, fs)
	return dev, fs, nil
}

// Spawn resolves name via the kernel's Loader and starts it as a fresh
// process. The first process ever spawned becomes the init process:
// every later process's orphaned children are reparented to it on exit.
func (k *Kernel) Spawn(name string) (*task.PCB, *task.TCB, error) {
	prog, err := k.Loader.Load(name)
	if err != nil {
		return nil, nil, err
	}

	pcb, t := k.Manager.Spawn(prog)
	pcb.EnableDeadlockDetection(k.cfg.DeadlockDetectDefault)
	if k.Manager.Init == nil {
		k.Manager.Init = pcb
	}

	klog.Debug().Printf("spawned %q as pid %d", name, pcb.PID)
	return pcb, t, nil
}

// Run blocks until every process the kernel has ever spawned has exited.
func (k *Kernel) Run() { k.Manager.Wait() }

// Shutdown flushes the filesystem to disk and releases the backing device.
func (k *Kernel) Shutdown() error {
	if err := k.fs.SyncAll(); err != nil {
		return err
	}
	return k.dev.Close()
}
