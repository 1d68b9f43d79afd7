// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected call wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// SafeCall runs fn and converts a panic into an error, so one failing unit of
// work cannot take down a batch.
func SafeCall(logger arbor.ILogger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			if logger != nil {
				logger.Error().
					Str("unit", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic")
			}
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}
