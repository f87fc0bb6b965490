//go:build linux

package affinity

import (
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// CPUSet is an alias for the Linux-specific CPU affinity mask.
type CPUSet = unix.CPUSet

// schedSetaffinity wraps the Linux sched_setaffinity syscall.
func schedSetaffinity(tid int, mask *CPUSet) error {
	return unix.SchedSetaffinity(tid, mask)
}

func currentThreadID() (int, error) {
	return unix.Gettid(), nil
}

// hostCPUCount counts the CPUs listed in sysfs. runtime.NumCPU only sees the
// CPUs in the process's affinity mask.
func hostCPUCount() int {
	matches, err := filepath.Glob("/sys/devices/system/cpu/cpu[0-9]*")
	if err != nil || len(matches) == 0 {
		return runtime.NumCPU()
	}
	return len(matches)
}
