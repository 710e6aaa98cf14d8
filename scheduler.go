package main

import "time"

// Scheduler runs fire-once delayed callbacks: respawn-after-death, the
// robot's next move, deferred session teardown. There is no cancellation;
// a task whose target object is gone by the time it fires must look the
// object up by ID and silently no-op.
type Scheduler interface {
	Schedule(delay time.Duration, task func())
}

type timerScheduler struct{}

// NewScheduler returns the wall-clock Scheduler used in production.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, task func()) {
	time.AfterFunc(delay, task)
}
