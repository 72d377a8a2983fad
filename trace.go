package uica

import (
	"fmt"
	"os"
)

// traceEnabled controls whether per-cycle debug tracing is enabled via the
// UICA_DEBUG env var.
var traceEnabled = os.Getenv("UICA_DEBUG") == "1"

// traceLog outputs a debug message if tracing is enabled.
func traceLog(format string, args ...interface{}) {
	if traceEnabled {
		fmt.Fprintf(os.Stderr, "[TRACE] "+format+"\n", args...)
	}
}

// traceCycle outputs a per-cycle stage transition line.
func traceCycle(cycle int64, stage string, format string, args ...interface{}) {
	if traceEnabled {
		msg := fmt.Sprintf(format, args...)
		fmt.Fprintf(os.Stderr, "[TRACE] cycle=%d stage=%s %s\n", cycle, stage, msg)
	}
}

// traceSeparator prints a visual separator in debug output.
func traceSeparator(title string) {
	if traceEnabled {
		fmt.Fprintf(os.Stderr, "[TRACE] ========== %s ==========\n", title)
	}
}
