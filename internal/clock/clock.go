// Package clock provides an injectable time source so snapshot timestamps
// can be tested without depending on wall-clock time.
package clock

import (
	"context"
	"time"
)

// nowFunc is swapped out in tests via Freeze/Unfreeze.
var nowFunc = time.Now //nolint:gochecknoglobals

// Now returns the current time, or a frozen time if Freeze was called.
func Now() time.Time {
	return nowFunc()
}

// Freeze pins Now() to t until Unfreeze is called. Tests only.
func Freeze(t time.Time) {
	nowFunc = func() time.Time { return t }
}

// Unfreeze restores Now() to the real wall clock.
func Unfreeze() {
	nowFunc = time.Now
}

// SleepInterruptibly sleeps for d or until ctx is canceled, whichever comes
// first. Returns true if the full duration elapsed, false if ctx ended it
// early.
func SleepInterruptibly(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
