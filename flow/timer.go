package flow

import "time"

// Timer is a cancellable pending call.
type Timer interface {
	// Stop prevents the call from running and reports whether it was still pending.
	Stop() bool
}

// TimerFactory schedules fn after d.
type TimerFactory func(d time.Duration, fn func()) Timer

// RealTimers schedules on the runtime timer heap.
func RealTimers(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
