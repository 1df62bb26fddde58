package relay

import (
	"sync"
	"time"
)

// LimitConfig is the admission-control tuning. Hot-reloadable via Apply.
type LimitConfig struct {
	MaxEvents int
	Window    time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	OK         bool
	RetryAfter time.Duration
}

// Limiter enforces a per-identity sliding window: at most MaxEvents
// admissions within any Window. Denied attempts never consume capacity.
type Limiter struct {
	mu     sync.Mutex
	cfg    LimitConfig
	events map[int64][]time.Time
}

func NewLimiter(cfg LimitConfig) *Limiter {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{cfg: cfg, events: map[int64][]time.Time{}}
}

// Apply swaps the limits in place. Timestamps already recorded are kept and
// re-evaluated against the new window on the next Admit.
func (l *Limiter) Apply(cfg LimitConfig) {
	if cfg.MaxEvents <= 0 || cfg.Window <= 0 {
		return
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
}

// Admit records and allows the event when the identity has capacity, or
// denies it with the whole-second wait after which a retry could succeed.
func (l *Limiter) Admit(id int64, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	ts := l.events[id]
	keep := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}

	if len(keep) >= l.cfg.MaxEvents {
		l.events[id] = keep
		wait := keep[0].Add(l.cfg.Window).Sub(now)
		secs := int64(wait / time.Second)
		if secs < 0 {
			secs = 0
		}
		return Decision{RetryAfter: time.Duration(secs+1) * time.Second}
	}

	keep = append(keep, now)
	l.events[id] = keep
	return Decision{OK: true}
}

// Prune drops identities whose every recorded event has left the window.
// Called periodically so one-off senders do not accumulate forever.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	removed := 0
	for id, ts := range l.events {
		live := false
		for _, t := range ts {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.events, id)
			removed++
		}
	}
	return removed
}
