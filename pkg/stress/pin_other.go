//go:build !linux

package stress

const pinSupported = false

func allowedCPUs() ([]int, error) { return nil, nil }

func pinToCPU(int) error { return nil }
