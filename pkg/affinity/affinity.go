// Package affinity pins OS threads to individual CPU cores.
//
// Platform-specific syscalls live in affinity_linux.go and affinity_other.go.
// Only Linux is supported; other platforms report errors.ErrUnsupported.
package affinity

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidArgument is returned when the thread id or CPU index is rejected
// before any syscall is attempted.
var ErrInvalidArgument = errors.New("invalid argument")

// BindError reports a failed affinity syscall. Err is the OS error verbatim.
type BindError struct {
	TID int
	CPU int
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind thread %d to CPU %d: %v", e.TID, e.CPU, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// SystemOps abstracts the affinity syscall.
type SystemOps interface {
	SchedSetaffinity(tid int, mask *CPUSet) error
}

type defaultSystemOps struct{}

func (s *defaultSystemOps) SchedSetaffinity(tid int, mask *CPUSet) error {
	return schedSetaffinity(tid, mask)
}

// Binder validates and applies single-CPU affinity masks.
type Binder struct {
	sys         SystemOps
	concurrency func() int
}

// NewBinder creates a Binder that issues syscalls through sys.
// A nil sys uses the real syscall.
func NewBinder(sys SystemOps) *Binder {
	if sys == nil {
		sys = &defaultSystemOps{}
	}
	return &Binder{
		sys:         sys,
		concurrency: HardwareConcurrency,
	}
}

var defaultBinder = NewBinder(nil)

// HardwareConcurrency returns the number of CPUs present on the host.
// On Linux this is counted from sysfs, so CPUs outside the process's current
// affinity mask are included; runtime.NumCPU is the fallback when sysfs is
// unreadable and on other platforms. Treat the value as a hint.
func HardwareConcurrency() int {
	return hostCPUCount()
}

// Bind sets the affinity of OS thread tid to the single CPU cpu.
func Bind(tid int, cpu int) error {
	return defaultBinder.Bind(tid, cpu)
}

// BindCurrent locks the calling goroutine to its OS thread and binds that
// thread to cpu. The goroutine stays locked after return.
func BindCurrent(cpu int) error {
	return defaultBinder.BindCurrent(cpu)
}

// CurrentThreadID returns the id of the calling OS thread.
func CurrentThreadID() (int, error) {
	return currentThreadID()
}

// Bind sets the affinity of OS thread tid to the single CPU cpu.
// tid must be positive and cpu must be below HardwareConcurrency.
func (b *Binder) Bind(tid int, cpu int) error {
	if tid <= 0 {
		return fmt.Errorf("%w: thread id %d", ErrInvalidArgument, tid)
	}
	if n := b.concurrency(); cpu < 0 || cpu >= n {
		return fmt.Errorf("%w: cpu %d out of range [0, %d)", ErrInvalidArgument, cpu, n)
	}

	var mask CPUSet
	mask.Set(cpu)
	if err := b.sys.SchedSetaffinity(tid, &mask); err != nil {
		return &BindError{TID: tid, CPU: cpu, Err: err}
	}
	return nil
}

// BindCurrent locks the calling goroutine to its OS thread and binds that
// thread to cpu.
func (b *Binder) BindCurrent(cpu int) error {
	runtime.LockOSThread()
	tid, err := currentThreadID()
	if err != nil {
		return err
	}
	return b.Bind(tid, cpu)
}
