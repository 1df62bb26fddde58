package relay

import (
	"context"
	"errors"
	"testing"

	"relaybot/internal/storage"
)

func newTestReply(t *testing.T, msgr *fakeMessenger) (*ReplyCoordinator, *StateStore, storage.Store) {
	t.Helper()
	states := NewStateStore()
	store := storage.NewMemory()
	c := NewReplyCoordinator(states, NewAdminRegistry([]int64{1}), store, msgr, testLogger())
	return c, states, store
}

func TestReplyFlowDeliversOnce(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, store := newTestReply(t, msgr)
	ctx := context.Background()

	if err := c.Start(ctx, 1, 100); err != nil {
		t.Fatal(err)
	}
	if st := states.Get(1); st.Kind != StateAwaitingReply || st.TargetUser != 100 {
		t.Fatalf("want awaiting-reply targeting 100, got %+v", st)
	}
	if prompt, ok := msgr.lastTo(1); !ok || !containsText(prompt, "Replying to") {
		t.Fatalf("admin must get the prompt, got %+v", prompt)
	}

	c.HandleText(ctx, 1, "here is your answer")

	userMsgs := msgr.sentTo(100)
	if len(userMsgs) != 1 || !containsText(userMsgs[0], "here is your answer") {
		t.Fatalf("target must get exactly one delivery, got %v", userMsgs)
	}
	if st := states.Get(1); st.Kind != StateIdle {
		t.Fatal("admin must return to idle after the reply")
	}
	if conf, ok := msgr.lastTo(1); !ok || !containsText(conf, "delivered") {
		t.Fatalf("admin must get the confirmation, got %+v", conf)
	}

	msgs, _ := store.ListMessages(ctx, 100, 10, false)
	if len(msgs) != 1 || msgs[0].Direction != storage.DirectionAdminToUser || msgs[0].AdminID != 1 {
		t.Fatalf("want one admin_to_user record by admin 1, got %+v", msgs)
	}

	// The flow is consumed: further text does not re-send.
	c.HandleText(ctx, 1, "again")
	if len(msgr.sentTo(100)) != 1 {
		t.Fatal("consumed flow must not deliver again")
	}
}

func TestReplyFailureStillReturnsToIdle(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	msgr.fail[100] = errors.New("blocked the bot")
	c, states, store := newTestReply(t, msgr)
	ctx := context.Background()

	if err := c.Start(ctx, 1, 100); err != nil {
		t.Fatal(err)
	}
	c.HandleText(ctx, 1, "hello?")

	if st := states.Get(1); st.Kind != StateIdle {
		t.Fatal("failed delivery must still reset the state")
	}
	if notice, ok := msgr.lastTo(1); !ok || !containsText(notice, "Could not deliver") {
		t.Fatalf("admin must hear about the failure, got %+v", notice)
	}
	if msgs, _ := store.ListMessages(ctx, 100, 10, false); len(msgs) != 0 {
		t.Fatal("undelivered replies are not recorded")
	}
}

func TestReplyStartReplacesPendingFlow(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestReply(t, msgr)
	ctx := context.Background()

	if err := c.Start(ctx, 1, 100); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx, 1, 200); err != nil {
		t.Fatal(err)
	}
	if st := states.Get(1); st.TargetUser != 200 {
		t.Fatalf("last start wins, got target %d", st.TargetUser)
	}

	c.HandleText(ctx, 1, "for the second user")
	if len(msgr.sentTo(100)) != 0 {
		t.Fatal("replaced target must receive nothing")
	}
	if len(msgr.sentTo(200)) != 1 {
		t.Fatal("current target must receive the reply")
	}
}

func TestReplyRejectsNonAdmin(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestReply(t, msgr)

	if err := c.Start(context.Background(), 999, 100); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("want ErrNotAdmin, got %v", err)
	}
	if st := states.Get(999); st.Kind != StateIdle {
		t.Fatal("refused start must not record state")
	}
	if msgr.count() != 0 {
		t.Fatal("refused start must not send anything")
	}
}

func TestReplyCancel(t *testing.T) {
	t.Parallel()

	msgr := newFakeMessenger()
	c, states, _ := newTestReply(t, msgr)
	ctx := context.Background()

	if err := c.Start(ctx, 1, 100); err != nil {
		t.Fatal(err)
	}
	c.Cancel(ctx, 1)

	if st := states.Get(1); st.Kind != StateIdle {
		t.Fatal("cancel must reset the state")
	}
	if conf, ok := msgr.lastTo(1); !ok || !containsText(conf, "Cancelled") {
		t.Fatalf("cancel must be confirmed, got %+v", conf)
	}
}
