// Package app wires configuration, transport, storage and the relay core
// into one lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/digest"
	"relaybot/internal/relay"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram/adapter"
	"relaybot/internal/transport/telegram/router"
	logx "relaybot/pkg/logx"
)

const updateBuffer = 256

type App struct {
	cfgm   *config.Manager
	logsvc *logx.Service
	log    logx.Logger

	adapter *adapter.Adapter
	store   storage.Store

	limiter   *relay.Limiter
	admins    *relay.AdminRegistry
	states    *relay.StateStore
	engine    *relay.Engine
	reply     *relay.ReplyCoordinator
	broadcast *relay.BroadcastCoordinator
	router    *router.Router
	digest    *digest.Service

	idleTimeout time.Duration

	sup     *supervisor.Supervisor
	updates chan kit.Update
	cfgCh   chan *config.Config
}

// New loads the config and builds every component. Nothing is running yet;
// call Start.
func New(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfgm.SetValidator(validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	logsvc, log := logx.New(toLogxConfig(cfg.Logging), ad)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		logsvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}

	busy, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	window, err := config.DurationOr("rate_limit.window", cfg.RateLimit.Window, time.Minute)
	if err != nil {
		return nil, err
	}
	fanout, err := config.DurationOr("relay.fanout_timeout", cfg.Relay.FanoutTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	idle, err := config.ParseDuration("relay.idle_timeout", cfg.Relay.IdleTimeout)
	if err != nil {
		return nil, err
	}
	perSend, err := config.DurationOr("broadcast.per_send_timeout", cfg.Broadcast.PerSendTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:        cfgm,
		logsvc:      logsvc,
		log:         log.With(logx.String("comp", "app")),
		adapter:     ad,
		store:       store,
		idleTimeout: idle,
	}

	a.limiter = relay.NewLimiter(relay.LimitConfig{
		MaxEvents: cfg.RateLimit.MaxEvents,
		Window:    window,
	})
	a.admins = relay.NewAdminRegistry(cfg.Admins.Seed)
	a.states = relay.NewStateStore()
	a.engine = relay.NewEngine(a.limiter, a.admins, store, ad, log, fanout)
	a.reply = relay.NewReplyCoordinator(a.states, a.admins, store, ad, log)
	a.broadcast = relay.NewBroadcastCoordinator(a.states, a.admins, store, ad, log, relay.BroadcastConfig{
		Workers:        cfg.Broadcast.Workers,
		RatePerSec:     cfg.Broadcast.RatePerSec,
		PerSendTimeout: perSend,
		SnapshotLimit:  cfg.Broadcast.SnapshotLimit,
	})
	a.router = router.New(router.Deps{
		Adapter:   ad,
		Engine:    a.engine,
		Reply:     a.reply,
		Broadcast: a.broadcast,
		Admins:    a.admins,
		States:    a.states,
		Store:     store,
		Log:       log,
	}, router.Config{})

	if cfg.Digest.Enabled {
		a.digest = digest.New(store, a.admins, ad, log, cfg.Digest.Schedule)
	}
	return a, nil
}

func validate(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	seeded := false
	for _, id := range cfg.Admins.Seed {
		if id > 0 {
			seeded = true
			break
		}
	}
	if !seeded {
		return errors.New("admins.seed needs at least one positive id")
	}
	return nil
}

// Start launches the transport, the router and the background loops.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)
	a.updates = make(chan kit.Update, updateBuffer)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	a.sup.Go("menu.update", func(c context.Context) error {
		mctx, cancel := context.WithTimeout(c, 5*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.router.Menu()); err != nil {
			a.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.cfgCh = a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", a.applyLoop)

	a.sup.Go0("limiter.prune", a.pruneLoop)
	if a.idleTimeout > 0 {
		a.sup.Go0("states.sweep", a.sweepLoop)
	}

	if a.digest != nil {
		if err := a.digest.Start(); err != nil {
			return fmt.Errorf("start digest: %w", err)
		}
	}

	a.log.Info("started", logx.Int("admins", a.admins.Count()))
	return nil
}

// applyLoop pushes hot-reloaded config into the running components.
// Structural settings (token, storage driver) need a restart and are
// intentionally ignored here.
func (a *App) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logsvc.Apply(toLogxConfig(cfg.Logging))
	if chatID := parseChatID(cfg.Telegram.GroupLog); chatID != 0 {
		a.logsvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}

	if window, err := config.DurationOr("rate_limit.window", cfg.RateLimit.Window, time.Minute); err == nil {
		a.limiter.Apply(relay.LimitConfig{MaxEvents: cfg.RateLimit.MaxEvents, Window: window})
	} else {
		a.log.Warn("reload: bad rate limit", logx.Err(err))
	}
	if fanout, err := config.DurationOr("relay.fanout_timeout", cfg.Relay.FanoutTimeout, 10*time.Second); err == nil {
		a.engine.ApplyFanoutTimeout(fanout)
	} else {
		a.log.Warn("reload: bad fanout timeout", logx.Err(err))
	}
	if perSend, err := config.DurationOr("broadcast.per_send_timeout", cfg.Broadcast.PerSendTimeout, 10*time.Second); err == nil {
		a.broadcast.Apply(relay.BroadcastConfig{
			Workers:        cfg.Broadcast.Workers,
			RatePerSec:     cfg.Broadcast.RatePerSec,
			PerSendTimeout: perSend,
			SnapshotLimit:  cfg.Broadcast.SnapshotLimit,
		})
	} else {
		a.log.Warn("reload: bad broadcast tuning", logx.Err(err))
	}

	// Seed changes only ever add: runtime removals go through /removeadmin,
	// and a shrunken seed must not silently drop a live admin.
	for _, id := range cfg.Admins.Seed {
		if a.admins.Add(id) {
			a.log.Info("admin added from config", logx.Int64("admin_id", id))
		}
	}

	a.log.Info("config applied")
}

func (a *App) pruneLoop(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := a.limiter.Prune(now); n > 0 {
				a.log.Debug("limiter pruned", logx.Int("identities", n))
			}
		}
	}
}

func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, adminID := range a.states.SweepIdle(now, a.idleTimeout) {
				a.log.Info("stale conversation reset", logx.Int64("admin_id", adminID))
			}
		}
	}
}

// Stop shuts everything down in dependency order, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	if a.digest != nil {
		a.digest.Stop(ctx)
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logsvc.Close()
}

func toLogxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			ThreadID:   c.Telegram.ThreadID,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}

func parseChatID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
