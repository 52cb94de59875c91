// Package kassert implements the "halt with diagnostic" side of the error
// model: kernel-visible inconsistencies that must never be silently
// swallowed.
package kassert

import "fmt"

// That panics with a formatted diagnostic if cond is false. Use it for
// invariants that indicate a bug in the kernel itself (a directory inode
// whose size isn't a multiple of 32, a scheduler invariant violation), never
// for ordinary argument validation — those return a negative sentinel
// instead.
func That(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
