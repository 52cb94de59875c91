// Package loader resolves a program name to an executable image. Parsing a
// real ELF binary and relocating it into a fresh mm.MemorySet is out of
// scope; instead a Loader resolves names against a registry of named Go
// closures ("user programs"), each one playing the role an ELF's entry
// point would: a function that runs on a task's goroutine and drives that
// task's syscalls.
package loader

import (
	"fmt"
	"sync"

	"github.com/easykernel/easykernel/pkg/task"
)

// Loader is a name -> task.Program registry.
type Loader struct {
	mu       sync.RWMutex
	programs map[string]task.Program
}

// New returns an empty loader.
func New() *Loader {
	return &Loader{programs: make(map[string]task.Program)}
}

// Register adds (or replaces) the program named name.
func (l *Loader) Register(name string, prog task.Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[name] = prog
}

// Load resolves name to its registered program.
func (l *Loader) Load(name string) (task.Program, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prog, ok := l.programs[name]
	if !ok {
		return nil, fmt.Errorf("loader: no program registered as %q", name)
	}
	return prog, nil
}

// Names returns every registered program name.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.programs))
	for name := range l.programs {
		out = append(out, name)
	}
	return out
}
