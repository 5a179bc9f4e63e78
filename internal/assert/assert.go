// Package assert implements the core's only failure channel: a pluggable
// abort handler. Lookups return booleans/optionals and erasures return
// counts, so the one remaining way for the core to signal a genuine
// failure is a programming-error assertion (reentrancy, invariant
// violation), which goes through Require.
package assert

import "fmt"

// Abort is called with a formatted message whenever Require's condition
// is false. It defaults to panicking, but callers embedding the core in
// an environment with its own fatal-error convention may replace it
// (e.g. to log-and-os.Exit instead of unwinding the goroutine stack).
var Abort func(msg string) = defaultAbort

func defaultAbort(msg string) {
	panic(msg)
}

// Require calls Abort with msg (formatted with args) if cond is false.
func Require(cond bool, format string, args ...any) {
	if !cond {
		Abort(fmt.Sprintf(format, args...))
	}
}
