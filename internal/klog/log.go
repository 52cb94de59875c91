// Package klog provides the kernel's debug/error logger pair: a flag-gated
// debug logger that discards output unless explicitly enabled, plus an
// always-on error logger.
package klog

import (
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"easykernel.debug",
	false,
	"Write kernel debugging messages to stderr.")

var (
	once      sync.Once
	debugger  *log.Logger
	errLogger *log.Logger
)

func initLoggers() {
	var w io.Writer = io.Discard
	if flag.Parsed() && *fEnableDebug {
		w = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	debugger = log.New(w, "easykernel: ", flags)
	errLogger = log.New(os.Stderr, "easykernel: ", flags)
}

// Debug returns the shared debug logger. Writes are discarded unless
// -easykernel.debug was passed.
func Debug() *log.Logger {
	once.Do(initLoggers)
	return debugger
}

// Error returns the shared error logger. Always writes to stderr.
func Error() *log.Logger {
	once.Do(initLoggers)
	return errLogger
}
