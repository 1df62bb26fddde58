package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"relaybot/internal/storage"
)

func newTestBroadcast(t *testing.T, msgr *fakeMessenger) (*BroadcastCoordinator, *StateStore, storage.Store) {
	t.Helper()
	states := NewStateStore()
	store := storage.NewMemory()
	c := NewBroadcastCoordinator(states, NewAdminRegistry([]int64{1}), store, msgr, testLogger(), BroadcastConfig{
		Workers:        2,
		RatePerSec:     1000,
		PerSendTimeout: time.Second,
	})
	return c, states, store
}

func seedUsers(t *testing.T, store storage.Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if _, err := store.UpsertUser(context.Background(), id, "", fmt.Sprintf("u%d", id), ""); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBroadcastFlowTallies(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	msgr.fail[300] = errors.New("deactivated account")
	c, states, store := newTestBroadcast(t, msgr)
	ctx := context.Background()
	seedUsers(t, store, 100, 200, 300)

	if err := c.Start(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if st := states.Get(1); st.Kind != StateAwaitingBroadcastText {
		t.Fatalf("want awaiting text, got %v", st.Kind)
	}

	c.SetBody(ctx, 1, "maintenance tonight")
	st := states.Get(1)
	if st.Kind != StateAwaitingBroadcastConfirm || st.Body != "maintenance tonight" {
		t.Fatalf("want awaiting confirm with body, got %+v", st)
	}
	if preview, ok := msgr.lastTo(1); !ok || !containsText(preview, "maintenance tonight") || len(preview.Opt.Actions) == 0 {
		t.Fatalf("preview must echo the body with confirm buttons, got %+v", preview)
	}

	c.Confirm(ctx, 1)

	if states.Get(1).Kind != StateIdle {
		t.Fatal("confirm must consume the state")
	}
	for _, id := range []int64{100, 200} {
		got := msgr.sentTo(id)
		if len(got) != 1 || !containsText(got[0], "maintenance tonight") {
			t.Fatalf("user %d: want exactly one delivery, got %v", id, got)
		}
	}
	summary, ok := msgr.lastTo(1)
	if !ok || !containsText(summary, "Sent: 2") || !containsText(summary, "Failed: 1") {
		t.Fatalf("want summary with 2 sent / 1 failed, got %+v", summary)
	}
}

func TestBroadcastSkipsBlockedUsers(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, _, store := newTestBroadcast(t, msgr)
	ctx := context.Background()
	seedUsers(t, store, 100, 200)
	if err := store.SetBlocked(ctx, 200, true); err != nil {
		t.Fatal(err)
	}

	if err := c.Start(ctx, 1); err != nil {
		t.Fatal(err)
	}
	c.SetBody(ctx, 1, "hello all")
	c.Confirm(ctx, 1)

	if len(msgr.sentTo(200)) != 0 {
		t.Fatal("blocked users are outside the snapshot")
	}
	if len(msgr.sentTo(100)) != 1 {
		t.Fatal("active user must receive the broadcast")
	}
}

func TestBroadcastConfirmWithoutBody(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestBroadcast(t, msgr)
	ctx := context.Background()

	c.Confirm(ctx, 1)

	if states.Get(1).Kind != StateIdle {
		t.Fatal("stray confirm must leave the admin idle")
	}
	if notice, ok := msgr.lastTo(1); !ok || !containsText(notice, "no pending broadcast") {
		t.Fatalf("stray confirm must be explained, got %+v", notice)
	}
}

func TestBroadcastCancel(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, store := newTestBroadcast(t, msgr)
	ctx := context.Background()
	seedUsers(t, store, 100)

	if err := c.Start(ctx, 1); err != nil {
		t.Fatal(err)
	}
	c.SetBody(ctx, 1, "never mind")
	c.Cancel(ctx, 1)

	if states.Get(1).Kind != StateIdle {
		t.Fatal("cancel must reset the state")
	}
	if len(msgr.sentTo(100)) != 0 {
		t.Fatal("cancelled broadcast must not deliver")
	}
}

func TestBroadcastRejectsNonAdmin(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestBroadcast(t, msgr)

	if err := c.Start(context.Background(), 999); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("want ErrNotAdmin, got %v", err)
	}
	if states.Get(999).Kind != StateIdle {
		t.Fatal("refused start must not record state")
	}
}

func TestBroadcastSetBodyRequiresFlow(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestBroadcast(t, msgr)

	c.SetBody(context.Background(), 1, "out of band")
	if states.Get(1).Kind != StateIdle {
		t.Fatal("body outside a flow must be ignored")
	}
	if msgr.count() != 0 {
		t.Fatal("ignored body must not send a preview")
	}
}
