//go:build linux
// +build linux

// File: affinity/affinity_linux.go
//
// Linux implementation of CPU affinity binding for the calling OS thread.
// Uses sched_setaffinity via golang.org/x/sys/unix; no cgo required.

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinityPlatform pins the calling goroutine's OS thread to cpuID.
//
// runtime.LockOSThread is required: affinity is a per-thread Linux
// attribute, and the Go scheduler may otherwise migrate the goroutine
// to a different thread between this call and the caller's intended
// use of it.
func setAffinityPlatform(cpuID int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("affinity: sched_setaffinity cpu=%d: %w", cpuID, err)
	}
	return nil
}
