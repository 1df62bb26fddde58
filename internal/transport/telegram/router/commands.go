package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"relaybot/internal/relay"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Description string
	Usage       string
	Access      Access
	Handle      HandlerFunc
}

func (r *Router) registerCommands() {
	cmds := []Command{
		{Name: "start", Description: "start talking to the admins", Handle: r.cmdStart},
		{Name: "help", Description: "show available commands", Handle: r.cmdHelp},
		{Name: "about", Description: "what this bot does", Handle: r.cmdAbout},
		{Name: "dashboard", Description: "usage stats", Access: AccessAdminOnly, Handle: r.cmdDashboard},
		{Name: "users", Description: "recently active users", Access: AccessAdminOnly, Handle: r.cmdUsers},
		{Name: "history", Usage: "/history <user_id>", Description: "conversation with a user", Access: AccessAdminOnly, Handle: r.cmdHistory},
		{Name: "reply", Usage: "/reply <user_id>", Description: "reply to a user", Access: AccessAdminOnly, Handle: r.cmdReply},
		{Name: "block", Usage: "/block <user_id>", Description: "block a user", Access: AccessAdminOnly, Handle: r.cmdBlock},
		{Name: "unblock", Usage: "/unblock <user_id>", Description: "unblock a user", Access: AccessAdminOnly, Handle: r.cmdUnblock},
		{Name: "addadmin", Usage: "/addadmin <user_id>", Description: "grant admin rights", Access: AccessAdminOnly, Handle: r.cmdAddAdmin},
		{Name: "removeadmin", Usage: "/removeadmin <user_id>", Description: "revoke admin rights", Access: AccessAdminOnly, Handle: r.cmdRemoveAdmin},
		{Name: "broadcast", Description: "message all users", Access: AccessAdminOnly, Handle: r.cmdBroadcast},
		{Name: "cancel", Description: "abort the current flow", Access: AccessAdminOnly, Handle: r.cmdCancel},
	}

	r.commands = make(map[string]Command, len(cmds))
	for _, c := range cmds {
		r.commands[c.Name] = c
	}

	// The platform menu is global, so it only lists commands everyone can run.
	for _, c := range cmds {
		if c.Access == AccessEveryone {
			r.menu = append(r.menu, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
	}
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	m := req.Update.Message
	if _, err := r.deps.Store.UpsertUser(ctx, m.FromID, m.FromUsername, m.FromFirstName, m.FromLastName); err != nil {
		req.Logger.Warn("upsert on start failed", logx.Err(err))
	}
	if r.deps.Admins.IsAdmin(req.FromID) {
		r.reply(ctx, req, "You are an admin. See /help for the admin commands.", nil)
		return nil
	}
	name := strings.TrimSpace(m.FromFirstName)
	if name == "" {
		name = "there"
	}
	r.reply(ctx, req, fmt.Sprintf(
		"Hi %s! Send me any message and it will reach the admin team. Replies arrive right here.", name), nil)
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	admin := r.deps.Admins.IsAdmin(req.FromID)

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tgui.B("Commands"))
	for _, name := range names {
		c := r.commands[name]
		if c.Access == AccessAdminOnly && !admin {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "\n%s %s", tgui.Code(usage), tgui.Esc(c.Description))
	}
	if !admin {
		b.WriteString("\n\nAnything else you type is forwarded to the admins.")
	}
	r.reply(ctx, req, b.String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return nil
}

func (r *Router) cmdAbout(ctx context.Context, req *Request) error {
	r.reply(ctx, req, "This bot relays your messages to the admin team and brings their replies back to you.", nil)
	return nil
}

func (r *Router) cmdDashboard(ctx context.Context, req *Request) error {
	total, err := r.deps.Store.CountUsers(ctx)
	if err != nil {
		return err
	}
	active, err := r.deps.Store.CountActiveUsers(ctx)
	if err != nil {
		return err
	}
	msgs, err := r.deps.Store.CountMessages(ctx)
	if err != nil {
		return err
	}
	r.reply(ctx, req, relay.DashboardText(total, active, msgs, r.deps.Admins.Count()),
		&kit.SendOptions{ParseMode: "HTML"})
	return nil
}

func (r *Router) cmdUsers(ctx context.Context, req *Request) error {
	users, err := r.deps.Store.ListActiveUsers(ctx, 10)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		r.reply(ctx, req, "No users yet.", nil)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tgui.B("Recent users"))
	for _, u := range users {
		fmt.Fprintf(&b, "\n%s %s", tgui.Code(strconv.FormatInt(u.ID, 10)), tgui.Esc(u.DisplayName()))
		if u.Username != "" {
			fmt.Fprintf(&b, " @%s", tgui.Esc(u.Username))
		}
	}
	b.WriteString("\n\nUse /history <user_id> or /reply <user_id>.")
	r.reply(ctx, req, b.String(), &kit.SendOptions{ParseMode: "HTML"})
	return nil
}

func (r *Router) cmdHistory(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /history <user_id>", nil)
		return nil
	}
	r.sendHistory(ctx, req.Chat, req.Logger, id)
	return nil
}

// sendHistory is shared between the /history command and the History button.
func (r *Router) sendHistory(ctx context.Context, chat kit.ChatTarget, log logx.Logger, userID int64) {
	u, err := r.deps.Store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("history lookup failed", logx.Err(err))
		}
		u = storage.User{ID: userID}
	}
	msgs, err := r.deps.Store.ListMessages(ctx, userID, 10, true)
	if err != nil {
		log.Warn("history query failed", logx.Err(err))
	}
	// Newest-first from the store, shown oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if _, err := r.deps.Adapter.SendText(ctx, chat, relay.HistoryText(u, msgs),
		&kit.SendOptions{ParseMode: "HTML"}); err != nil {
		log.Warn("history send failed", logx.Err(err))
	}
}

func (r *Router) cmdReply(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /reply <user_id>", nil)
		return nil
	}
	return r.deps.Reply.Start(ctx, req.FromID, id)
}

func (r *Router) cmdBlock(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /block <user_id>", nil)
		return nil
	}
	r.reply(ctx, req, r.setBlocked(ctx, id, true), nil)
	return nil
}

func (r *Router) cmdUnblock(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /unblock <user_id>", nil)
		return nil
	}
	r.reply(ctx, req, r.setBlocked(ctx, id, false), nil)
	return nil
}

func (r *Router) setBlocked(ctx context.Context, userID int64, blocked bool) string {
	if blocked && r.deps.Admins.IsAdmin(userID) {
		return "Admins cannot be blocked."
	}
	if err := r.deps.Store.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Sprintf("Unknown user %d.", userID)
		}
		return "Storage error, see logs."
	}
	if blocked {
		return fmt.Sprintf("User %d blocked.", userID)
	}
	return fmt.Sprintf("User %d unblocked.", userID)
}

func (r *Router) cmdAddAdmin(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /addadmin <user_id>", nil)
		return nil
	}
	if r.deps.Admins.Add(id) {
		r.reply(ctx, req, fmt.Sprintf("User %d is now an admin.", id), nil)
	} else {
		r.reply(ctx, req, fmt.Sprintf("User %d is already an admin.", id), nil)
	}
	return nil
}

func (r *Router) cmdRemoveAdmin(ctx context.Context, req *Request) error {
	id, ok := argID(req.Args)
	if !ok {
		r.reply(ctx, req, "Usage: /removeadmin <user_id>", nil)
		return nil
	}
	removed, err := r.deps.Admins.Remove(id)
	switch {
	case errors.Is(err, relay.ErrLastAdmin):
		r.reply(ctx, req, "Refusing to remove the last admin.", nil)
	case removed:
		r.reply(ctx, req, fmt.Sprintf("User %d is no longer an admin.", id), nil)
	default:
		r.reply(ctx, req, fmt.Sprintf("User %d is not an admin.", id), nil)
	}
	return nil
}

func (r *Router) cmdBroadcast(ctx context.Context, req *Request) error {
	return r.deps.Broadcast.Start(ctx, req.FromID)
}

func (r *Router) cmdCancel(ctx context.Context, req *Request) error {
	r.deps.Reply.Cancel(ctx, req.FromID)
	return nil
}

func argID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
