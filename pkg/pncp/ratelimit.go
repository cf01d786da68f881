package pncp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WindowLimiter enforces a request budget over two sliding windows: one
// minute and one hour. Wait delays the caller until admitting one more
// request keeps both windows within their ceilings; it never rejects.
type WindowLimiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	minute    []time.Time
	hour      []time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWindowLimiter creates a limiter admitting at most perMinute requests in
// any 60s window and perHour in any 3600s window.
func NewWindowLimiter(perMinute, perHour int) *WindowLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if perHour <= 0 {
		perHour = 1000
	}
	return &WindowLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Wait blocks until one more request fits in both windows, then records it.
// It loops rather than sleeping once: entries may have expired from either
// window while we slept, so the state is re-checked after every wake-up.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.minute = pruneBefore(l.minute, now.Add(-time.Minute))
		l.hour = pruneBefore(l.hour, now.Add(-time.Hour))

		if len(l.minute) < l.perMinute && len(l.hour) < l.perHour {
			l.minute = append(l.minute, now)
			l.hour = append(l.hour, now)
			l.mu.Unlock()
			return nil
		}

		// Sleep exactly until the oldest blocking entry leaves its window.
		var d time.Duration
		if len(l.minute) >= l.perMinute {
			d = time.Minute - now.Sub(l.minute[0])
		} else {
			d = time.Hour - now.Sub(l.hour[0])
		}
		l.mu.Unlock()

		if d <= 0 {
			continue
		}
		zap.L().Debug("pncp: rate limit reached, waiting",
			zap.Duration("wait", d),
		)
		if err := l.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// pruneBefore drops timestamps at or before the cutoff. Slices are kept in
// insertion order, so the prefix is all that ever expires.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
