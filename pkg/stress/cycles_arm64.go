//go:build arm64

package stress

// readCycles reads the virtual counter CNTVCT_EL0.
func readCycles() uint64
