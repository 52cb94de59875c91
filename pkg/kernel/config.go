package kernel

import (
	"flag"

	"github.com/easykernel/easykernel/pkg/pagetable"
)

var (
	fDiskPath = flag.String(
		"easykernel.disk",
		"easykernel.img",
		"Path to the EasyFS disk image to mount, creating it if absent.")

	fBlockCount = flag.Uint(
		"easykernel.blocks",
		8192,
		"Total number of 512-byte blocks in the disk image, when creating it.")

	fInodeBitmapBlocks = flag.Uint(
		"easykernel.inode_bitmap_blocks",
		1,
		"Number of inode bitmap blocks, when creating the disk image.")

	fFrames = flag.Uint(
		"easykernel.frames",
		4096,
		"Number of simulated physical page frames available to user processes.")

	fDeadlockDetect = flag.Bool(
		"easykernel.deadlock_detect",
		false,
		"Enable banker's-algorithm deadlock detection by default for new processes.")
)

// Config holds everything Boot needs to bring up a Kernel, mirroring the
// teacher's flag-based MountConfig rather than introducing a config library
// the teacher never reaches for.
type Config struct {
	DiskPath              string
	BlockCount            uint32
	InodeBitmapBlocks     uint32
	FrameCount            pagetable.Frame
	DeadlockDetectDefault bool

	// Format forces Boot to overwrite DiskPath with a freshly formatted
	// image, even if one already exists there.
	Format bool
}

// ConfigFromFlags builds a Config from the parsed command-line flags above.
// Callers embedding the kernel without flag.Parse (e.g. tests) should build
// a Config literal directly instead.
func ConfigFromFlags() Config {
	return Config{
		DiskPath:              *fDiskPath,
		BlockCount:            uint32(*fBlockCount),
		InodeBitmapBlocks:     uint32(*fInodeBitmapBlocks),
		FrameCount:            pagetable.Frame(*fFrames),
		DeadlockDetectDefault: *fDeadlockDetect,
	}
}
