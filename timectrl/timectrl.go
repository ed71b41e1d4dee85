// Package timectrl drives the subframe clock of the PHY loop.
package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/phy-core/tti"
)

// Subframe is the nominal duration of one TTI.
const Subframe = time.Millisecond

// Clock exposes the current TTI to components that must not own the loop.
type Clock interface {
	// Now returns the TTI currently being processed.
	Now() uint32
}

// Mode describes how the TimeController advances the TTI.
type Mode int

const (
	// RealTime advances one TTI per Tick of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners return.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController steps the TTI ring and notifies registered listeners with
// every new TTI. It implements Clock.
type TimeController struct {
	mu   sync.RWMutex
	Tick time.Duration
	Mode Mode

	current   uint32
	processed uint64

	listeners []func(uint32)
}

// NewTimeController constructs a controller starting at TTI start. A
// non-positive tick defaults to Subframe. Out-of-ring start values are
// reduced onto the ring.
func NewTimeController(start uint32, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = Subframe
	}
	return &TimeController{
		Tick:    tick,
		Mode:    mode,
		current: start % tti.Period,
	}
}

// Now returns the TTI last delivered to listeners. Implements Clock.
func (tc *TimeController) Now() uint32 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.current
}

// Processed returns how many TTIs have been delivered since construction.
func (tc *TimeController) Processed() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.processed
}

// SetTTI moves the clock to t, e.g. after cell search resynchronizes the
// frame number.
func (tc *TimeController) SetTTI(t uint32) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.current = t % tti.Period
}

// AddListener registers a callback invoked on every TTI. Listeners run on
// the controller goroutine and must not block. Register before Start.
func (tc *TimeController) AddListener(fn func(uint32)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine for count TTIs, or
// until ctx is cancelled when count is zero. It returns a channel that is
// closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, count uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var tick <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for n := uint64(0); count == 0 || n < count; n++ {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}

			tc.mu.Lock()
			tc.current = tti.Next(tc.current)
			tc.processed++
			now := tc.current
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(now)
			}
		}
	}()
	return done
}
