// Package pacing produces randomized, human-plausible delays between
// automated portal actions. Bulk-paste speed form fills and
// zero-latency page transitions are an easy automation tell, so every
// interaction with the portal routes its waits through here.
package pacing

import (
	"context"
	"math/rand"
	"time"

	random "github.com/mazen160/go-random"
)

// Range is a half-open interval of durations to draw from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Interval returns a random duration in [Min, Max).
func (r Range) Interval() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	jitter, err := random.IntRange(0, int(r.Max-r.Min))
	if err != nil {
		// crypto/rand exhaustion, fall back to the weak source
		jitter = rand.Intn(int(r.Max - r.Min))
	}
	return r.Min + time.Duration(jitter)
}

// Sleep blocks for a random duration in [Min, Max) or until the
// context is cancelled.
func (r Range) Sleep(ctx context.Context) error {
	t := time.NewTimer(r.Interval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Profile bundles the delay ranges one automated session draws from.
type Profile struct {
	// pause between individual keystrokes
	Keystroke Range
	// settle time granted after a navigation
	PageLoad Range
	// hesitation between locating a control and acting on it
	Action Range
	// hesitation before clicking submit
	PreSubmit Range
}

// Default mirrors observed human interaction speed on the portal.
func Default() Profile {
	return Profile{
		Keystroke: Range{50 * time.Millisecond, 150 * time.Millisecond},
		PageLoad:  Range{time.Second, 3 * time.Second},
		Action:    Range{500 * time.Millisecond, 1500 * time.Millisecond},
		PreSubmit: Range{time.Second, 2 * time.Second},
	}
}

// Instant removes all waiting. Only suitable for tests and local
// development against a fake portal.
func Instant() Profile {
	return Profile{}
}

// Between spaces out successive portal submissions within one worker
// pass, 30-90s by default.
func Between() Range {
	return Range{30 * time.Second, 90 * time.Second}
}
