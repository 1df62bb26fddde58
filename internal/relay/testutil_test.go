package relay

import (
	"context"
	"strings"
	"sync"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type sentMsg struct {
	To   int64
	Text string
	Opt  *kit.SendOptions
}

// fakeMessenger records outbound sends and fails deliveries to chat ids
// listed in fail.
type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMsg
	fail map[int64]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{fail: map[int64]error{}}
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[to.ChatID]; ok {
		return kit.MessageRef{}, err
	}
	f.sent = append(f.sent, sentMsg{To: to.ChatID, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeMessenger) sentTo(id int64) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, m := range f.sent {
		if m.To == id {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessenger) lastTo(id int64) (sentMsg, bool) {
	msgs := f.sentTo(id)
	if len(msgs) == 0 {
		return sentMsg{}, false
	}
	return msgs[len(msgs)-1], true
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func containsText(m sentMsg, sub string) bool {
	return strings.Contains(m.Text, sub)
}

func testLogger() logx.Logger { return logx.Nop() }
