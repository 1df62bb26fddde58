package relay

import (
	"context"
	"errors"

	kit "relaybot/internal/transport"
)

// ErrNotAdmin is returned when a non-admin attempts an admin-only transition.
// Callers treat it as a silent refusal (the state machine is left untouched).
var ErrNotAdmin = errors.New("not an admin")

// Messenger is the outbound delivery capability consumed by the relay core.
// One call is one delivery attempt; failures are returned, never retried here.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// UserInfo carries the platform identity and display fields of an inbound
// sender, as provided by the transport.
type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Tally is the aggregate outcome of a fan-out run.
type Tally struct {
	Sent   int
	Failed int
}

// dm addresses an identity's private chat (chat id == user id on Telegram).
func dm(id int64) kit.ChatTarget { return kit.ChatTarget{ChatID: id} }
