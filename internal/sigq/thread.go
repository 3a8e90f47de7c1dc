package sigq

import (
	"fmt"
	"runtime"
)

// SpawnAndJoin runs entry(arg) on a new goroutine pinned to its own OS
// thread and waits for it, returning entry's error. A panic in entry is
// returned as an error rather than crashing the host.
func SpawnAndJoin[T any](entry func(T) error, arg T) error {
	if entry == nil {
		return fmt.Errorf("sigq: nil thread entry")
	}
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		// Unlock before exiting so the runtime keeps the thread instead of
		// terminating it, which would fire the parent-death signal of any
		// child still forked from it.
		defer runtime.UnlockOSThread()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sigq: thread entry panicked: %v", r)
			}
		}()
		done <- entry(arg)
	}()
	return <-done
}
