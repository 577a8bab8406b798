// Package debug writes component-tagged diagnostics for the indexer. Output
// is off unless debugging is enabled and a writer is configured.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug turns debug output on. Set at build time with
// -ldflags "-X github.com/standardbeagle/grtags/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu      sync.Mutex
	out     io.Writer
	logFile *os.File
)

// SetOutput routes debug output to w. nil disables it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// OpenLogFile appends debug output to the file at path.
// CloseLog closes it.
func OpenLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	out = f
	return nil
}

// CloseLog closes the file opened by OpenLogFile, if any.
func CloseLog() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	out = nil
	return err
}

// Enabled reports whether debug output is on, through the build flag or
// GRTAGS_DEBUG=1.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("GRTAGS_DEBUG")
	return v == "1" || v == "true"
}

// Log writes one message tagged with component. format supplies its own
// line ending.
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return
	}
	fmt.Fprintf(out, "[DEBUG:%s] "+format, append([]interface{}{component}, args...)...)
}

func LogIndexing(format string, args ...interface{}) { Log("INDEX", format, args...) }
func LogStore(format string, args ...interface{})    { Log("STORE", format, args...) }
func LogWatch(format string, args ...interface{})    { Log("WATCH", format, args...) }
func LogParse(format string, args ...interface{})    { Log("PARSE", format, args...) }
