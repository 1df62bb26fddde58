package router

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"relaybot/internal/relay"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const (
	unknownCommandText = "Unknown command. Try /help."
	unauthorizedText   = "This command is for admins."
	busyText           = "Busy right now, please try again."
)

// Deps are the collaborators the router dispatches into.
type Deps struct {
	Adapter   kit.Adapter
	Engine    *relay.Engine
	Reply     *relay.ReplyCoordinator
	Broadcast *relay.BroadcastCoordinator
	Admins    *relay.AdminRegistry
	States    *relay.StateStore
	Store     storage.Store
	Log       logx.Logger
}

type Config struct {
	Workers       int
	QueueSize     int
	HandleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 30 * time.Second
	}
	return c
}

// Router classifies inbound updates (command, free text, callback) and runs
// each identity's updates on a fixed shard, so no two handlers for the same
// identity ever run concurrently while different identities proceed in
// parallel.
type Router struct {
	deps Deps
	cfg  Config
	log  logx.Logger

	commands map[string]Command
	menu     []kit.BotCommand
	handle   HandlerFunc

	queues  []chan kit.Update
	dropped atomic.Uint64
}

func New(deps Deps, cfg Config) *Router {
	cfg = cfg.withDefaults()
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		deps: deps,
		cfg:  cfg,
		log:  log.With(logx.String("comp", "router")),
	}
	r.registerCommands()
	r.handle = Chain(
		r.route,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cfg.HandleTimeout),
	)
	r.queues = make([]chan kit.Update, cfg.Workers)
	for i := range r.queues {
		r.queues[i] = make(chan kit.Update, cfg.QueueSize)
	}
	return r
}

// Menu returns the command list suitable for the platform's command menu.
func (r *Router) Menu() []kit.BotCommand {
	return append([]kit.BotCommand(nil), r.menu...)
}

// Run consumes updates until ctx is done or the channel closes. Shard
// workers restart on failure; the dispatch loop itself never blocks on a
// full shard.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	for i := range r.queues {
		idx := i
		q := r.queues[i]
		sup.GoRestart("router.shard."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-q:
					if !ok {
						return nil
					}
					r.dispatch(c, up)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	r.log.Info("router started",
		logx.Int("shards", len(r.queues)), logx.Int("queue_cap", r.cfg.QueueSize))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		if n := r.dropped.Load(); n > 0 {
			r.log.Warn("updates dropped on full shards", logx.Uint64("count", n))
		}
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			sup.Cancel()
			return nil
		case up, ok := <-updates:
			if !ok {
				sup.Cancel()
				return nil
			}
			r.enqueue(ctx, up)
		}
	}
}

// identity is the sharding key: the human behind the update.
func identity(up kit.Update) int64 {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			return up.Message.FromID
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			return up.Callback.FromID
		}
	}
	return 0
}

func shardOf(id int64, n int) int {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(n))
}

func (r *Router) enqueue(ctx context.Context, up kit.Update) {
	id := identity(up)
	if id == 0 {
		return
	}
	q := r.queues[shardOf(id, len(r.queues))]
	select {
	case q <- up:
	default:
		r.dropped.Add(1)
		if up.Kind == kit.UpdateMessage && up.Message != nil {
			_, _ = r.deps.Adapter.SendText(ctx,
				kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID},
				busyText, nil)
		}
	}
}

// dispatch builds the request and runs it through the middleware chain.
func (r *Router) dispatch(ctx context.Context, up kit.Update) {
	req := &Request{Update: up, Adapter: r.deps.Adapter}
	switch up.Kind {
	case kit.UpdateMessage:
		m := up.Message
		if m == nil {
			return
		}
		req.Chat = kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
		req.FromID = m.FromID
		if cmd, args, ok := parseCommand(m.Text); ok {
			req.Command = cmd
			req.Args = args
		}
	case kit.UpdateCallback:
		cb := up.Callback
		if cb == nil {
			return
		}
		req.Chat = kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
		req.FromID = cb.FromID
	default:
		return
	}
	req.Logger = r.log.With(
		logx.String("kind", string(up.Kind)),
		logx.Int64("from_id", req.FromID),
	)
	_ = r.handle(ctx, req)
}

// route is the innermost handler: command, callback, or free text.
func (r *Router) route(ctx context.Context, req *Request) error {
	switch req.Update.Kind {
	case kit.UpdateCallback:
		return r.routeCallback(ctx, req)
	case kit.UpdateMessage:
		if req.Command != "" {
			return r.routeCommand(ctx, req)
		}
		return r.routeText(ctx, req)
	}
	return nil
}

func (r *Router) routeCommand(ctx context.Context, req *Request) error {
	cmd, ok := r.commands[req.Command]
	if !ok {
		r.reply(ctx, req, unknownCommandText, nil)
		return nil
	}
	if cmd.Access == AccessAdminOnly && !r.deps.Admins.IsAdmin(req.FromID) {
		r.reply(ctx, req, unauthorizedText, nil)
		return nil
	}
	return cmd.Handle(ctx, req)
}

// routeText handles non-command messages: admins feed their pending flow,
// everyone else goes through the relay engine.
func (r *Router) routeText(ctx context.Context, req *Request) error {
	m := req.Update.Message
	if !r.deps.Admins.IsAdmin(req.FromID) {
		r.deps.Engine.HandleUserMessage(ctx, relay.UserInfo{
			ID:        m.FromID,
			Username:  m.FromUsername,
			FirstName: m.FromFirstName,
			LastName:  m.FromLastName,
		}, strings.TrimSpace(m.Text), m.HasMedia)
		return nil
	}

	switch r.deps.States.Get(req.FromID).Kind {
	case relay.StateAwaitingReply:
		r.deps.Reply.HandleText(ctx, req.FromID, strings.TrimSpace(m.Text))
	case relay.StateAwaitingBroadcastText:
		r.deps.Broadcast.SetBody(ctx, req.FromID, strings.TrimSpace(m.Text))
	case relay.StateAwaitingBroadcastConfirm:
		r.reply(ctx, req, "Use the buttons to confirm, or /cancel.", nil)
	default:
		r.reply(ctx, req, "No conversation in progress. See /help.", nil)
	}
	return nil
}

func (r *Router) reply(ctx context.Context, req *Request, text string, opt *kit.SendOptions) {
	if _, err := r.deps.Adapter.SendText(ctx, req.Chat, text, opt); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

// parseCommand splits "/cmd@bot arg..." into name and args. Returns ok=false
// for plain text.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}
