//go:build !linux

package affinity

import (
	"errors"
	"fmt"
	"runtime"
)

// CPUSet is a stub type for non-Linux platforms.
// The actual implementation only works on Linux.
type CPUSet struct {
	bits [16]uint64 // matches unix.CPUSet size
}

// Set marks cpu as part of the set.
func (s *CPUSet) Set(cpu int) {
	if cpu >= 0 && cpu < 1024 {
		s.bits[cpu/64] |= 1 << (uint(cpu) % 64)
	}
}

// IsSet reports whether cpu is part of the set.
func (s *CPUSet) IsSet(cpu int) bool {
	if cpu >= 0 && cpu < 1024 {
		return s.bits[cpu/64]&(1<<(uint(cpu)%64)) != 0
	}
	return false
}

// Count returns the number of CPUs in the set.
func (s *CPUSet) Count() int {
	n := 0
	for cpu := 0; cpu < 1024; cpu++ {
		if s.IsSet(cpu) {
			n++
		}
	}
	return n
}

func schedSetaffinity(tid int, mask *CPUSet) error {
	return fmt.Errorf("CPU affinity is only supported on Linux: %w", errors.ErrUnsupported)
}

func currentThreadID() (int, error) {
	return 0, fmt.Errorf("thread ids are only available on Linux: %w", errors.ErrUnsupported)
}

func hostCPUCount() int {
	return runtime.NumCPU()
}
