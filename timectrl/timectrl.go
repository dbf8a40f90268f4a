// Package timectrl drives the frame loop of a simulation run.
package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Mode describes how the FrameClock advances.
type Mode int

const (
	// RealTime emits one frame per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated emits frames as fast as listeners consume them while
	// still stepping simulation time by Interval.
	Accelerated
)

// ParseMode maps "realtime" and "accelerated" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "realtime", "real-time":
		return RealTime, true
	case "accelerated", "fast", "":
		return Accelerated, true
	default:
		return Accelerated, false
	}
}

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// Frame is one tick of the clock.
type Frame struct {
	Index uint64
	Time  time.Time
}

// FrameClock steps simulation time one frame at a time and notifies
// registered listeners in order.
type FrameClock struct {
	mu       sync.RWMutex
	Start    time.Time
	Interval time.Duration
	Mode     Mode

	clock   clock.Clock
	current Frame

	listeners []func(Frame)
}

// Option customises a FrameClock.
type Option func(*FrameClock)

// WithClock replaces the wall clock used in RealTime mode.
func WithClock(c clock.Clock) Option {
	return func(fc *FrameClock) {
		if c != nil {
			fc.clock = c
		}
	}
}

// NewFrameClock constructs a clock positioned at start.
func NewFrameClock(start time.Time, interval time.Duration, mode Mode, opts ...Option) *FrameClock {
	fc := &FrameClock{
		Start:    start,
		Interval: interval,
		Mode:     mode,
		clock:    clock.New(),
		current:  Frame{Time: start},
	}
	for _, opt := range opts {
		opt(fc)
	}
	return fc
}

// Now returns the simulation time of the last emitted frame.
func (fc *FrameClock) Now() time.Time {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.current.Time
}

// Current returns the last emitted frame.
func (fc *FrameClock) Current() Frame {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.current
}

// AddListener registers a callback invoked on every frame. Listeners must
// be added before Run.
func (fc *FrameClock) AddListener(fn func(Frame)) {
	fc.listeners = append(fc.listeners, fn)
}

// Run emits frames in a separate goroutine until frames have been emitted
// (0 means unbounded) or ctx is cancelled. It returns a channel that is
// closed when the clock stops.
func (fc *FrameClock) Run(ctx context.Context, frames uint64) <-chan struct{} {
	done := make(chan struct{})

	var ticker *clock.Ticker
	if fc.Mode == RealTime {
		// Created here so no tick is lost before the goroutine starts.
		ticker = fc.clock.Ticker(fc.Interval)
	}

	go func() {
		defer close(done)
		if ticker != nil {
			defer ticker.Stop()
		}

		fc.mu.Lock()
		fc.current = Frame{Time: fc.Start}
		fc.mu.Unlock()

		for n := uint64(0); frames == 0 || n < frames; n++ {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			fc.mu.Lock()
			fc.current = Frame{Index: n + 1, Time: fc.current.Time.Add(fc.Interval)}
			f := fc.current
			fc.mu.Unlock()

			for _, fn := range fc.listeners {
				fn(f)
			}
		}
	}()
	return done
}
