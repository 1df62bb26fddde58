package relay

import (
	"testing"
	"time"
)

func TestStateStoreDefaultsIdle(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	if st := s.Get(1); st.Kind != StateIdle {
		t.Fatalf("unknown admin must be idle, got %v", st.Kind)
	}
}

func TestStateStoreLastWriterWins(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.Set(1, State{Kind: StateAwaitingReply, TargetUser: 100})
	s.Set(1, State{Kind: StateAwaitingBroadcastText})

	st := s.Get(1)
	if st.Kind != StateAwaitingBroadcastText {
		t.Fatalf("want broadcast state, got %v", st.Kind)
	}
	if st.TargetUser != 0 {
		t.Fatal("replaced state must not leak the previous target")
	}
	if st.EnteredAt.IsZero() {
		t.Fatal("Set must stamp EnteredAt")
	}

	s.Clear(1)
	if st := s.Get(1); st.Kind != StateIdle {
		t.Fatalf("after clear: want idle, got %v", st.Kind)
	}
}

func TestStateStoreSweepIdle(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	old := time.Now().Add(-2 * time.Hour)
	s.Set(1, State{Kind: StateAwaitingReply, TargetUser: 100, EnteredAt: old})
	s.Set(2, State{Kind: StateAwaitingBroadcastText})

	expired := s.SweepIdle(time.Now(), time.Hour)
	if len(expired) != 1 || expired[0] != 1 {
		t.Fatalf("want admin 1 swept, got %v", expired)
	}
	if s.Get(1).Kind != StateIdle {
		t.Fatal("swept admin must be idle")
	}
	if s.Get(2).Kind != StateAwaitingBroadcastText {
		t.Fatal("fresh state must survive the sweep")
	}

	if got := s.SweepIdle(time.Now(), 0); got != nil {
		t.Fatalf("zero maxAge disables sweeping, got %v", got)
	}
}
