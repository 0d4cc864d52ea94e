//go:build amd64

package stress

// readCycles executes RDTSC.
func readCycles() uint64
