package stress

// Cycles reads the hardware cycle counter. Values are monotonically
// non-decreasing on one thread; they are not comparable across machines.
func Cycles() uint64 { return readCycles() }
