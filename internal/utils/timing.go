// Package utils holds small cross-cutting helpers.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowThreshold marks computations worth flagging; frontier sweeps and large
// Monte Carlo runs are the usual offenders.
const slowThreshold = 10 * time.Second

// TimeOperation measures the duration of a computation in a defer-friendly
// way.
//
// Usage:
//
//	defer utils.TimeOperation("frontier_sweep", log)()
func TimeOperation(operation string, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)

		event := log.Debug()
		if duration > slowThreshold {
			event = log.Warn()
		}
		event.
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")
	}
}
