package ravel

import "os"

// DebugEnabled controls whether debug-level logging is active. It is set
// automatically based on the RAVEL_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("RAVEL_DEBUG") == "1"
}
