package relay

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// BroadcastConfig tunes the broadcast worker pool. Hot-reloadable via Apply.
type BroadcastConfig struct {
	Workers        int
	RatePerSec     int
	PerSendTimeout time.Duration
	SnapshotLimit  int
}

func (c BroadcastConfig) withDefaults() BroadcastConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.PerSendTimeout <= 0 {
		c.PerSendTimeout = 10 * time.Second
	}
	if c.SnapshotLimit <= 0 {
		c.SnapshotLimit = 10000
	}
	return c
}

// BroadcastCoordinator drives the admin broadcast flow: collect a body, show
// a preview, and on confirmation fan the body out to a one-time snapshot of
// active users through a rate-limited worker pool.
type BroadcastCoordinator struct {
	states *StateStore
	admins *AdminRegistry
	store  storage.Store
	msgr   Messenger
	log    logx.Logger

	mu      sync.Mutex
	cfg     BroadcastConfig
	limiter *rate.Limiter
}

func NewBroadcastCoordinator(states *StateStore, admins *AdminRegistry, store storage.Store, msgr Messenger, log logx.Logger, cfg BroadcastConfig) *BroadcastCoordinator {
	cfg = cfg.withDefaults()
	return &BroadcastCoordinator{
		states:  states,
		admins:  admins,
		store:   store,
		msgr:    msgr,
		log:     log.With(logx.String("comp", "broadcast")),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Apply swaps the pool tuning. A broadcast already running keeps the
// snapshot it took but picks up the new rate immediately.
func (c *BroadcastCoordinator) Apply(cfg BroadcastConfig) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	c.cfg = cfg
	c.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	c.limiter.SetBurst(cfg.RatePerSec)
	c.mu.Unlock()
}

func (c *BroadcastCoordinator) tuning() BroadcastConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Start moves the admin into the awaiting-broadcast-text state and reports
// the current reach estimate.
func (c *BroadcastCoordinator) Start(ctx context.Context, adminID int64) error {
	if !c.admins.IsAdmin(adminID) {
		return ErrNotAdmin
	}
	reach, err := c.store.CountActiveUsers(ctx)
	if err != nil {
		c.log.Warn("reach count failed", logx.Err(err))
	}
	c.states.Set(adminID, State{Kind: StateAwaitingBroadcastText})
	c.notify(ctx, adminID, broadcastPrompt(reach), nil)
	return nil
}

// SetBody records the collected broadcast text and asks for confirmation.
func (c *BroadcastCoordinator) SetBody(ctx context.Context, adminID int64, body string) {
	st := c.states.Get(adminID)
	if st.Kind != StateAwaitingBroadcastText {
		return
	}
	reach, err := c.store.CountActiveUsers(ctx)
	if err != nil {
		c.log.Warn("reach count failed", logx.Err(err))
	}
	c.states.Set(adminID, State{Kind: StateAwaitingBroadcastConfirm, Body: body})
	c.notify(ctx, adminID, broadcastPreview(body, reach),
		&kit.SendOptions{ParseMode: "HTML", Actions: broadcastActions()})
}

// Confirm executes the pending broadcast. The recipient list is snapshotted
// once before delivery begins; users appearing afterwards are not included.
func (c *BroadcastCoordinator) Confirm(ctx context.Context, adminID int64) {
	st := c.states.Get(adminID)
	c.states.Clear(adminID)
	if st.Kind != StateAwaitingBroadcastConfirm || st.Body == "" {
		c.notify(ctx, adminID, broadcastMissing, nil)
		return
	}

	cfg := c.tuning()
	users, err := c.store.ListActiveUsers(ctx, cfg.SnapshotLimit)
	if err != nil {
		c.log.Error("snapshot failed", logx.Err(err))
		c.notify(ctx, adminID, broadcastSummary(Tally{}), nil)
		return
	}

	start := time.Now()
	tally := c.deliver(ctx, st.Body, users, cfg)
	c.log.Info("broadcast done",
		logx.Int64("admin_id", adminID),
		logx.Int("sent", tally.Sent), logx.Int("failed", tally.Failed),
		logx.Duration("took", time.Since(start)))

	c.notify(ctx, adminID, broadcastSummary(tally), nil)
}

// Cancel aborts a pending broadcast and confirms it.
func (c *BroadcastCoordinator) Cancel(ctx context.Context, adminID int64) {
	c.states.Clear(adminID)
	c.notify(ctx, adminID, cancelledNotice, nil)
}

// deliver fans the body out over a fixed worker pool. Every recipient gets
// exactly one attempt; failures are tallied, never retried.
func (c *BroadcastCoordinator) deliver(ctx context.Context, body string, users []storage.User, cfg BroadcastConfig) Tally {
	text := broadcastDelivery(body)
	opt := &kit.SendOptions{ParseMode: "HTML"}

	jobs := make(chan int64)
	var (
		mu    sync.Mutex
		tally Tally
		wg    sync.WaitGroup
	)

	workers := cfg.Workers
	if workers > len(users) && len(users) > 0 {
		workers = len(users)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := c.limiter.Wait(ctx); err != nil {
					mu.Lock()
					tally.Failed++
					mu.Unlock()
					continue
				}
				sctx, cancel := context.WithTimeout(ctx, cfg.PerSendTimeout)
				_, err := c.msgr.SendText(sctx, dm(id), text, opt)
				cancel()
				mu.Lock()
				if err != nil {
					tally.Failed++
				} else {
					tally.Sent++
				}
				mu.Unlock()
				if err != nil {
					c.log.Warn("broadcast delivery failed", logx.Int64("user_id", id), logx.Err(err))
				}
			}
		}()
	}

	for _, u := range users {
		jobs <- u.ID
	}
	close(jobs)
	wg.Wait()
	return tally
}

func (c *BroadcastCoordinator) notify(ctx context.Context, adminID int64, text string, opt *kit.SendOptions) {
	if _, err := c.msgr.SendText(ctx, dm(adminID), text, opt); err != nil {
		c.log.Warn("admin notice failed", logx.Int64("admin_id", adminID), logx.Err(err))
	}
}
