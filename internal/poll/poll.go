// Package poll implements the fixed-interval wait loop shared by the lease,
// server and bare-metal controllers. The clock is injectable so tests can
// simulate time advancement without real delays.
package poll

import (
	"context"
	"time"

	"github.com/envagent/envboot/fault"
)

// Clock abstracts wall-clock access for the loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

// Stats describes what a finished loop actually did.
type Stats struct {
	Polls   int
	Elapsed time.Duration
}

// Func is called once per interval. Returning done=true stops the loop
// successfully. Returning a non-nil error stops the loop with that error;
// transient conditions must be swallowed by the callback itself (log and
// return done=false) so that polling continues.
type Func func() (done bool, err error)

// Run polls fn at the given interval until it reports done, fails, or the
// wall-clock budget elapses. The loop never sleeps past the budget: the last
// sleep is clamped to the remaining time. On budget exhaustion the returned
// error has kind fault.Timeout.
func Run(ctx context.Context, clock Clock, timeout, interval time.Duration, fn Func) (Stats, error) {
	if clock == nil {
		clock = RealClock()
	}
	start := clock.Now()
	stats := Stats{}

	for {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = clock.Now().Sub(start)
			return stats, err
		}

		done, err := fn()
		stats.Polls++
		stats.Elapsed = clock.Now().Sub(start)
		if err != nil {
			return stats, err
		}
		if done {
			return stats, nil
		}

		remaining := timeout - clock.Now().Sub(start)
		if remaining <= 0 {
			return stats, fault.New(fault.Timeout, "timed out after %s (%d polls)", timeout, stats.Polls)
		}
		clock.Sleep(min(interval, remaining))
	}
}
