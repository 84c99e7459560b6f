// Package telemetry is a small, hand-rolled debug logger in the same
// style as the teacher's internal/utils/debug.go: a lazily-opened log
// file gated by a verbosity flag, no external logging library.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	mu      sync.Mutex
	logDir  string
	logFile *os.File
	verbose atomic.Bool
)

// Configure sets the directory debug log files are created in. Call
// once at process start, before SetVerbose(true).
func Configure(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

// SetVerbose toggles whether Debug/Event actually write anything.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// IsVerbose reports the current verbosity setting.
func IsVerbose() bool {
	return verbose.Load()
}

// Debug writes a single formatted line to the debug log, opening the
// log file on first use. A no-op when verbosity is off.
func Debug(format string, args ...any) {
	if !verbose.Load() {
		return
	}
	line := fmt.Sprintf(format, args...)
	writeLine(line)
}

// Event writes a structured one-line record for a control-plane
// transition, e.g. Event("paused", map[string]any{"id": id}).
func Event(name string, fields map[string]any) {
	if !verbose.Load() {
		return
	}
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, "event="+name)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	writeLine(strings.Join(parts, " "))
}

func writeLine(line string) {
	mu.Lock()
	defer mu.Unlock()

	if logDir == "" {
		return
	}
	if logFile == nil {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return
		}
		name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.Create(filepath.Join(logDir, name))
		if err != nil {
			return
		}
		logFile = f
	}
	fmt.Fprintf(logFile, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), line)
}

// Close flushes and releases the underlying log file, if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
