// Command easykernel boots the kernel against a disk image, spawns the
// built-in init process, and runs until every process it started has
// exited.
package main

import (
	"flag"
	"log"

	"github.com/easykernel/easykernel/internal/klog"
	"github.com/easykernel/easykernel/pkg/kernel"
	"github.com/easykernel/easykernel/pkg/loader"
	"github.com/easykernel/easykernel/pkg/task"
)

var fFormat = flag.Bool(
	"easykernel.format",
	false,
	"Format the disk image fresh, even if one already exists at -easykernel.disk.")

func main() {
	flag.Parse()

	cfg := kernel.ConfigFromFlags()
	cfg.Format = *fFormat

	k, err := kernel.Boot(cfg)
	if err != nil {
		log.Fatalf("kernel.Boot: %v", err)
	}

	registerBuiltins(k.Loader)

	if _, _, err := k.Spawn("init"); err != nil {
		log.Fatalf("spawn init: %v", err)
	}

	k.Run()

	if err := k.Shutdown(); err != nil {
		log.Fatalf("kernel.Shutdown: %v", err)
	}
}

// registerBuiltins installs the small set of demo programs an ELF loader
// would otherwise read off disk; see pkg/loader's doc comment for why this
// stands in for that.
func registerBuiltins(l *loader.Loader) {
	l.Register("init", initProgram)
}

// initProgram is a placeholder init process: it logs its pid to the debug
// logger and returns.
func initProgram(t *task.TCB) {
	klog.Debug().Printf("init: pid %d running", t.PCB.PID)
}
