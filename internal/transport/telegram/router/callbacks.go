package router

import (
	"context"
	"strconv"

	"relaybot/internal/relay"
	logx "relaybot/pkg/logx"
	"relaybot/pkg/tgui"
)

// routeCallback handles inline-button presses. Every button this bot emits
// is an operator action, so non-admins are refused outright.
func (r *Router) routeCallback(ctx context.Context, req *Request) error {
	cb := req.Update.Callback

	if !r.deps.Admins.IsAdmin(req.FromID) {
		return r.deps.Adapter.AnswerCallback(ctx, cb.ID, "Not allowed.")
	}

	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return r.deps.Adapter.AnswerCallback(ctx, cb.ID, "")
	}

	ack := ""
	switch scope {
	case relay.ScopeRelay:
		userID, err := strconv.ParseInt(payload, 10, 64)
		if err != nil || userID <= 0 {
			return r.deps.Adapter.AnswerCallback(ctx, cb.ID, "")
		}
		switch action {
		case relay.ActionReply:
			if err := r.deps.Reply.Start(ctx, req.FromID, userID); err != nil {
				req.Logger.Warn("reply start failed", logx.Err(err))
			}
		case relay.ActionBlock:
			ack = r.setBlocked(ctx, userID, true)
		case relay.ActionUnblock:
			ack = r.setBlocked(ctx, userID, false)
		case relay.ActionHistory:
			r.sendHistory(ctx, req.Chat, req.Logger, userID)
		}
	case relay.ScopeBroadcast:
		switch action {
		case relay.ActionConfirm:
			r.deps.Broadcast.Confirm(ctx, req.FromID)
		case relay.ActionCancel:
			r.deps.Broadcast.Cancel(ctx, req.FromID)
		}
	}

	return r.deps.Adapter.AnswerCallback(ctx, cb.ID, ack)
}
