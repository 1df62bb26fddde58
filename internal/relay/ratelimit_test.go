package relay

import (
	"testing"
	"time"
)

func TestLimiterSlidingWindow(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimitConfig{MaxEvents: 5, Window: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if d := l.Admit(42, base); !d.OK {
			t.Fatalf("event %d: want admit, got denial (retry %v)", i, d.RetryAfter)
		}
	}

	d := l.Admit(42, base)
	if d.OK {
		t.Fatal("6th event within window: want denial")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("denial must carry positive retry, got %v", d.RetryAfter)
	}

	// Denials consume nothing: the identity recovers as soon as the window
	// slides past the oldest admitted event.
	if d := l.Admit(42, base.Add(61*time.Second)); !d.OK {
		t.Fatalf("after window slide: want admit, got denial (retry %v)", d.RetryAfter)
	}
}

func TestLimiterRetryAfterShrinks(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimitConfig{MaxEvents: 1, Window: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if d := l.Admit(7, base); !d.OK {
		t.Fatal("first event: want admit")
	}
	early := l.Admit(7, base.Add(10*time.Second))
	late := l.Admit(7, base.Add(50*time.Second))
	if early.OK || late.OK {
		t.Fatal("both retries inside the window must be denied")
	}
	if late.RetryAfter >= early.RetryAfter {
		t.Fatalf("retry must shrink as the window slides: early=%v late=%v", early.RetryAfter, late.RetryAfter)
	}
}

func TestLimiterIdentitiesIndependent(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimitConfig{MaxEvents: 1, Window: time.Minute})
	now := time.Now()

	if d := l.Admit(1, now); !d.OK {
		t.Fatal("identity 1: want admit")
	}
	if d := l.Admit(2, now); !d.OK {
		t.Fatal("identity 2 must not be throttled by identity 1")
	}
}

func TestLimiterApplyTightens(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimitConfig{MaxEvents: 10, Window: time.Minute})
	now := time.Now()
	for i := 0; i < 3; i++ {
		l.Admit(5, now)
	}

	l.Apply(LimitConfig{MaxEvents: 3, Window: time.Minute})
	if d := l.Admit(5, now); d.OK {
		t.Fatal("recorded events must count against the tightened limit")
	}
}

func TestLimiterPrune(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimitConfig{MaxEvents: 5, Window: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Admit(1, base)
	l.Admit(2, base)
	l.Admit(3, base.Add(50*time.Second))

	if n := l.Prune(base.Add(70 * time.Second)); n != 2 {
		t.Fatalf("want 2 identities pruned, got %d", n)
	}
}
