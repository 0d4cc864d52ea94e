//go:build !amd64 && !arm64

package stress

import "time"

var cyclesEpoch = time.Now()

// readCycles falls back to monotonic nanoseconds.
func readCycles() uint64 { return uint64(time.Since(cyclesEpoch)) }
