package verification

import "time"

// Clock is the time source a session schedules its ticks and timeout on
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// Ticker delivers a tick every period until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer fires once after its duration unless stopped first
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// WallClock is the real-time Clock
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) NewTicker(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }

func (WallClock) NewTimer(d time.Duration) Timer { return wallTimer{time.NewTimer(d)} }

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

type wallTimer struct{ t *time.Timer }

func (w wallTimer) C() <-chan time.Time { return w.t.C }
func (w wallTimer) Stop() bool          { return w.t.Stop() }
