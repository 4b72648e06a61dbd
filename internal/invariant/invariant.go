// Package invariant checks internal consistency conditions.
//
// Built with the cxxdebug tag a failed check panics. Otherwise it is logged
// and execution continues, so a release build degrades instead of crashing.
package invariant

import (
	"fmt"

	"github.com/charmbracelet/log"
)

var logger = log.WithPrefix("invariant")

// Enabled reports whether checks panic on failure.
func Enabled() bool {
	return enabled
}

// Check reports a violated condition. It returns cond so callers can bail out
// of the inconsistent branch in release builds.
func Check(cond bool, format string, args ...any) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if enabled {
		panic("invariant violated: " + msg)
	}
	logger.Warnf("invariant violated: %s", msg)
	return false
}
