package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"relaybot/internal/storage"
)

func newTestEngine(t *testing.T, admins []int64, msgr *fakeMessenger, limit LimitConfig) (*Engine, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	eng := NewEngine(NewLimiter(limit), NewAdminRegistry(admins), store, msgr, testLogger(), time.Second)
	return eng, store
}

func TestEngineRelaysToEveryAdmin(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	eng, store := newTestEngine(t, []int64{1, 2}, msgr, LimitConfig{MaxEvents: 5, Window: time.Minute})
	ctx := context.Background()

	eng.HandleUserMessage(ctx, UserInfo{ID: 100, FirstName: "Ada"}, "hello there", false)

	for _, adminID := range []int64{1, 2} {
		got := msgr.sentTo(adminID)
		if len(got) != 1 {
			t.Fatalf("admin %d: want 1 notice, got %d", adminID, len(got))
		}
		if !containsText(got[0], "hello there") {
			t.Fatalf("admin %d notice misses the text: %q", adminID, got[0].Text)
		}
		if len(got[0].Opt.Actions) == 0 {
			t.Fatalf("admin %d notice must carry action buttons", adminID)
		}
	}

	ack, ok := msgr.lastTo(100)
	if !ok || !containsText(ack, "forwarded") {
		t.Fatalf("sender must get a success ack, got %+v", ack)
	}

	msgs, err := store.ListMessages(ctx, 100, 10, false)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("want 1 persisted message, got %d (err %v)", len(msgs), err)
	}
	if msgs[0].Direction != storage.DirectionUserToAdmin {
		t.Fatalf("want user_to_admin, got %s", msgs[0].Direction)
	}
}

func TestEngineOneAdminFailingDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	msgr.fail[2] = errors.New("chat unreachable")
	eng, _ := newTestEngine(t, []int64{1, 2, 3}, msgr, LimitConfig{MaxEvents: 5, Window: time.Minute})
	ctx := context.Background()

	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "ping", false)

	if len(msgr.sentTo(1)) != 1 || len(msgr.sentTo(3)) != 1 {
		t.Fatal("healthy admins must still receive the relay")
	}
	if ack, ok := msgr.lastTo(100); !ok || !containsText(ack, "forwarded") {
		t.Fatal("partial delivery still acks success to the sender")
	}
}

func TestEngineAllAdminsFailingAcksFailure(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	msgr.fail[1] = errors.New("down")
	eng, store := newTestEngine(t, []int64{1}, msgr, LimitConfig{MaxEvents: 5, Window: time.Minute})
	ctx := context.Background()

	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "ping", false)

	if ack, ok := msgr.lastTo(100); !ok || !containsText(ack, "could not be delivered") {
		t.Fatalf("want failure ack, got %+v", ack)
	}
	// Delivery failed but the message is still on record.
	if msgs, _ := store.ListMessages(ctx, 100, 10, false); len(msgs) != 1 {
		t.Fatalf("want 1 persisted message regardless of delivery, got %d", len(msgs))
	}
}

func TestEngineBlockedUserShortCircuits(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	eng, store := newTestEngine(t, []int64{1}, msgr, LimitConfig{MaxEvents: 1, Window: time.Minute})
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, 100, "", "Ada", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.SetBlocked(ctx, 100, true); err != nil {
		t.Fatal(err)
	}

	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "let me in", false)

	if len(msgr.sentTo(1)) != 0 {
		t.Fatal("blocked messages must not reach admins")
	}
	if notice, ok := msgr.lastTo(100); !ok || !containsText(notice, "not able") {
		t.Fatalf("blocked sender must get the notice, got %+v", notice)
	}
	if msgs, _ := store.ListMessages(ctx, 100, 10, false); len(msgs) != 0 {
		t.Fatal("blocked messages must not be persisted")
	}

	// The blocked attempt consumed no admission: after unblocking, the
	// single-slot limiter still admits.
	if err := store.SetBlocked(ctx, 100, false); err != nil {
		t.Fatal(err)
	}
	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "hello", false)
	if len(msgr.sentTo(1)) != 1 {
		t.Fatal("unblocked message must relay")
	}
}

func TestEngineThrottlesAndIgnoresAdmins(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	eng, _ := newTestEngine(t, []int64{1}, msgr, LimitConfig{MaxEvents: 1, Window: time.Minute})
	ctx := context.Background()

	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "one", false)
	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "two", false)

	if len(msgr.sentTo(1)) != 1 {
		t.Fatal("second message inside the window must not relay")
	}
	if notice, ok := msgr.lastTo(100); !ok || !containsText(notice, "slow down") {
		t.Fatalf("throttled sender must get the retry notice, got %+v", notice)
	}

	// Messages from admins never enter the relay pipeline.
	eng.HandleUserMessage(ctx, UserInfo{ID: 1}, "admin text", false)
	if len(msgr.sentTo(1)) != 1 {
		t.Fatal("admin input must be ignored by the engine")
	}
}

func TestEngineMediaPlaceholder(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	eng, store := newTestEngine(t, []int64{1}, msgr, LimitConfig{MaxEvents: 5, Window: time.Minute})
	ctx := context.Background()

	eng.HandleUserMessage(ctx, UserInfo{ID: 100}, "", true)

	msgs, _ := store.ListMessages(ctx, 100, 10, false)
	if len(msgs) != 1 || msgs[0].Text != "[media]" {
		t.Fatalf("captionless media must persist the placeholder, got %+v", msgs)
	}
}
