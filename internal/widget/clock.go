package widget

import "time"

// Clock schedules one-shot callbacks. The widget never cancels the show
// timer, so Timer exists only so real and fake clocks share a shape.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// SystemClock runs callbacks on runtime timers.
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
