package application

import (
	"context"
	"time"
)

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemSleeper blocks on a real timer.
type SystemSleeper struct{}

func (SystemSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
