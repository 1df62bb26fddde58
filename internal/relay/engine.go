package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// Engine handles inbound user messages: admission, persistence and the
// concurrent relay fan-out to every admin.
type Engine struct {
	limiter *Limiter
	admins  *AdminRegistry
	store   storage.Store
	msgr    Messenger
	log     logx.Logger

	mu            sync.Mutex
	fanoutTimeout time.Duration

	now func() time.Time
}

func NewEngine(limiter *Limiter, admins *AdminRegistry, store storage.Store, msgr Messenger, log logx.Logger, fanoutTimeout time.Duration) *Engine {
	if fanoutTimeout <= 0 {
		fanoutTimeout = 10 * time.Second
	}
	return &Engine{
		limiter:       limiter,
		admins:        admins,
		store:         store,
		msgr:          msgr,
		log:           log.With(logx.String("comp", "relay")),
		fanoutTimeout: fanoutTimeout,
		now:           time.Now,
	}
}

// ApplyFanoutTimeout swaps the per-delivery deadline on reload.
func (e *Engine) ApplyFanoutTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.fanoutTimeout = d
	e.mu.Unlock()
}

func (e *Engine) perSendTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fanoutTimeout
}

// HandleUserMessage runs the full inbound pipeline for one message from a
// non-admin identity. Messages from admins are ignored here; the router
// dispatches those to the conversation flows instead.
func (e *Engine) HandleUserMessage(ctx context.Context, from UserInfo, text string, media bool) {
	if e.admins.IsAdmin(from.ID) {
		return
	}

	// Blocked senders get the notice and nothing else: no admission
	// consumed, nothing persisted, no fan-out.
	if u, err := e.store.GetUser(ctx, from.ID); err == nil && u.Blocked {
		e.send(ctx, dm(from.ID), blockedNotice, nil)
		return
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.log.Warn("blocked lookup failed", logx.Int64("user_id", from.ID), logx.Err(err))
	}

	if d := e.limiter.Admit(from.ID, e.now()); !d.OK {
		e.send(ctx, dm(from.ID), throttleNotice(d.RetryAfter), nil)
		return
	}

	u, err := e.store.UpsertUser(ctx, from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		e.log.Error("upsert user failed", logx.Int64("user_id", from.ID), logx.Err(err))
		u = storage.User{ID: from.ID, Username: from.Username, FirstName: from.FirstName, LastName: from.LastName}
	}

	if text == "" && media {
		text = mediaPlaceholder
	}

	if err := e.store.AppendMessage(ctx, storage.Message{
		UserID:    from.ID,
		Text:      text,
		Direction: storage.DirectionUserToAdmin,
	}); err != nil {
		e.log.Error("persist message failed", logx.Int64("user_id", from.ID), logx.Err(err))
	}

	tally := e.fanOut(ctx, u, text)

	ack := relayAckOK
	if tally.Sent == 0 {
		ack = relayAckFail
	}
	e.send(ctx, dm(from.ID), ack, nil)
}

// fanOut delivers the relay notice to every admin concurrently. Each
// delivery gets its own deadline; one admin failing never affects the rest.
func (e *Engine) fanOut(ctx context.Context, u storage.User, text string) Tally {
	admins := e.admins.List()
	if len(admins) == 0 {
		e.log.Error("no admins registered, relay dropped", logx.Int64("user_id", u.ID))
		return Tally{}
	}

	notice := adminRelayNotice(u, text)
	opt := &kit.SendOptions{ParseMode: "HTML", Actions: relayActions(u.ID, u.Blocked)}
	timeout := e.perSendTimeout()

	var (
		mu    sync.Mutex
		tally Tally
		wg    sync.WaitGroup
	)
	for _, adminID := range admins {
		wg.Add(1)
		go func(adminID int64) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			_, err := e.msgr.SendText(sctx, dm(adminID), notice, opt)
			mu.Lock()
			if err != nil {
				tally.Failed++
			} else {
				tally.Sent++
			}
			mu.Unlock()
			if err != nil {
				e.log.Warn("relay delivery failed",
					logx.Int64("admin_id", adminID), logx.Int64("user_id", u.ID), logx.Err(err))
			}
		}(adminID)
	}
	wg.Wait()

	e.log.Info("relay fan-out done",
		logx.Int64("user_id", u.ID), logx.Int("sent", tally.Sent), logx.Int("failed", tally.Failed))
	return tally
}

// send is a fire-and-forget notice. Failures are logged only.
func (e *Engine) send(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) {
	if _, err := e.msgr.SendText(ctx, to, text, opt); err != nil {
		e.log.Warn("notice delivery failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
