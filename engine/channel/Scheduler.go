package channel

import (
	"time"

	"github.com/xiaonanln/goTimer"
)

// Scheduler runs delayed functions on the main loop
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

// TimerScheduler schedules on goTimer, callbacks run inside timer.Tick of the main loop
func TimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	timer.AddCallback(d, f)
}
