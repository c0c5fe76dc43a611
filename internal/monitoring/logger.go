// Package monitoring owns the process loggers: Logf, used by request logging
// and the HTTP helpers, and the rotated ops/diag/trace streams each binary
// opens at startup.
package monitoring

import "log"

// Logf writes one ops-level line. Streams.Install points it at the ops
// stream; until then it is log.Printf.
var Logf = log.Printf

// SetLogger replaces Logf. nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
