package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"relaybot/internal/relay"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

type sent struct {
	To   int64
	Text string
	Opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{To: to.ChatID, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) sentTo(id int64) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, m := range f.sent {
		if m.To == id {
			out = append(out, m)
		}
	}
	return out
}

func newTestRouter(t *testing.T, adminIDs []int64) (*Router, *fakeAdapter, storage.Store) {
	t.Helper()
	ad := &fakeAdapter{}
	store := storage.NewMemory()
	log := logx.Nop()

	admins := relay.NewAdminRegistry(adminIDs)
	states := relay.NewStateStore()
	limiter := relay.NewLimiter(relay.LimitConfig{MaxEvents: 100, Window: time.Minute})
	engine := relay.NewEngine(limiter, admins, store, ad, log, time.Second)
	reply := relay.NewReplyCoordinator(states, admins, store, ad, log)
	broadcast := relay.NewBroadcastCoordinator(states, admins, store, ad, log, relay.BroadcastConfig{
		Workers: 1, RatePerSec: 1000, PerSendTimeout: time.Second,
	})

	r := New(Deps{
		Adapter:   ad,
		Engine:    engine,
		Reply:     reply,
		Broadcast: broadcast,
		Admins:    admins,
		States:    states,
		Store:     store,
		Log:       log,
	}, Config{})
	return r, ad, store
}

func msgUpdate(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: from, FromID: from, Text: text,
	}}
}

func cbUpdate(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", FromID: from, ChatID: from, Data: data,
	}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start", "start", nil, true},
		{"/HELP", "help", nil, true},
		{"/reply@relay_bot 123", "reply", []string{"123"}, true},
		{"  /history 42  ", "history", []string{"42"}, true},
		{"hello there", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if ok != tc.ok || name != tc.name {
			t.Fatalf("%q: got (%q, %v, %v)", tc.in, name, args, ok)
		}
		if len(args) != len(tc.args) {
			t.Fatalf("%q: want args %v, got %v", tc.in, tc.args, args)
		}
	}
}

func TestShardOfStableAndBounded(t *testing.T) {
	t.Parallel()

	for id := int64(1); id < 1000; id++ {
		a := shardOf(id, 4)
		b := shardOf(id, 4)
		if a != b {
			t.Fatalf("shard for %d not stable: %d vs %d", id, a, b)
		}
		if a < 0 || a >= 4 {
			t.Fatalf("shard for %d out of range: %d", id, a)
		}
	}
}

func TestAdminCommandRefusedForUsers(t *testing.T) {
	t.Parallel()

	r, ad, _ := newTestRouter(t, []int64{1})
	r.dispatch(context.Background(), msgUpdate(100, "/dashboard"))

	got := ad.sentTo(100)
	if len(got) != 1 || !strings.Contains(got[0].Text, "for admins") {
		t.Fatalf("want refusal, got %v", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	r, ad, _ := newTestRouter(t, []int64{1})
	r.dispatch(context.Background(), msgUpdate(100, "/frobnicate"))

	got := ad.sentTo(100)
	if len(got) != 1 || !strings.Contains(got[0].Text, "Unknown command") {
		t.Fatalf("want unknown-command reply, got %v", got)
	}
}

func TestUserFreeTextRelays(t *testing.T) {
	t.Parallel()

	r, ad, store := newTestRouter(t, []int64{1})
	r.dispatch(context.Background(), msgUpdate(100, "I need help"))

	admin := ad.sentTo(1)
	if len(admin) != 1 || !strings.Contains(admin[0].Text, "I need help") {
		t.Fatalf("admin must receive the relay, got %v", admin)
	}
	if msgs, _ := store.ListMessages(context.Background(), 100, 10, false); len(msgs) != 1 {
		t.Fatalf("want 1 stored message, got %d", len(msgs))
	}
}

func TestAdminFreeTextFeedsPendingFlow(t *testing.T) {
	t.Parallel()

	r, ad, _ := newTestRouter(t, []int64{1})
	ctx := context.Background()

	r.dispatch(ctx, msgUpdate(1, "/reply 100"))
	r.dispatch(ctx, msgUpdate(1, "here is the answer"))

	user := ad.sentTo(100)
	if len(user) != 1 || !strings.Contains(user[0].Text, "here is the answer") {
		t.Fatalf("reply flow must deliver to the user, got %v", user)
	}

	// Idle admin text gets the hint, not a relay.
	r.dispatch(ctx, msgUpdate(1, "stray text"))
	admin := ad.sentTo(1)
	if len(admin) == 0 || !strings.Contains(admin[len(admin)-1].Text, "No conversation") {
		t.Fatalf("want idle hint, got %v", admin)
	}
}

func TestCallbackAccessControl(t *testing.T) {
	t.Parallel()

	r, ad, _ := newTestRouter(t, []int64{1})
	ctx := context.Background()

	r.dispatch(ctx, cbUpdate(100, tgui.Data(relay.ScopeBroadcast, relay.ActionConfirm, "")))
	if len(ad.answers) != 1 || ad.answers[0] != "Not allowed." {
		t.Fatalf("non-admin callback must be refused, got %v", ad.answers)
	}
}

func TestCallbackBlockFlow(t *testing.T) {
	t.Parallel()

	r, ad, store := newTestRouter(t, []int64{1})
	ctx := context.Background()
	if _, err := store.UpsertUser(ctx, 100, "", "Ada", ""); err != nil {
		t.Fatal(err)
	}

	r.dispatch(ctx, cbUpdate(1, tgui.Data(relay.ScopeRelay, relay.ActionBlock, "100")))

	u, err := store.GetUser(ctx, 100)
	if err != nil || !u.Blocked {
		t.Fatalf("block button must block the user, got %+v err %v", u, err)
	}
	if len(ad.answers) != 1 || !strings.Contains(ad.answers[0], "blocked") {
		t.Fatalf("want block ack, got %v", ad.answers)
	}
}

func TestMenuListsPublicCommandsOnly(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t, []int64{1})
	for _, c := range r.Menu() {
		if cmd, ok := r.commands[c.Command]; !ok || cmd.Access != AccessEveryone {
			t.Fatalf("menu leaks non-public command %q", c.Command)
		}
	}
	if len(r.Menu()) == 0 {
		t.Fatal("menu must not be empty")
	}
}
