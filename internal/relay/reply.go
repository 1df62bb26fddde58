package relay

import (
	"context"
	"errors"

	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// ReplyCoordinator drives the admin reply flow: pick a target user, collect
// one text, deliver it, record it, return to idle.
type ReplyCoordinator struct {
	states *StateStore
	admins *AdminRegistry
	store  storage.Store
	msgr   Messenger
	log    logx.Logger
}

func NewReplyCoordinator(states *StateStore, admins *AdminRegistry, store storage.Store, msgr Messenger, log logx.Logger) *ReplyCoordinator {
	return &ReplyCoordinator{
		states: states,
		admins: admins,
		store:  store,
		msgr:   msgr,
		log:    log.With(logx.String("comp", "reply")),
	}
}

// Start moves the admin into the awaiting-reply state for the given user.
// Starting over an existing pending flow silently replaces it.
func (c *ReplyCoordinator) Start(ctx context.Context, adminID, targetUser int64) error {
	if !c.admins.IsAdmin(adminID) {
		return ErrNotAdmin
	}

	u, err := c.store.GetUser(ctx, targetUser)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("target lookup failed", logx.Int64("user_id", targetUser), logx.Err(err))
		}
		u = storage.User{ID: targetUser}
	}

	c.states.Set(adminID, State{Kind: StateAwaitingReply, TargetUser: targetUser})
	c.notify(ctx, adminID, replyPrompt(u), &kit.SendOptions{ParseMode: "HTML"})
	return nil
}

// HandleText consumes the collected reply text. Exactly one delivery attempt
// is made; whatever the outcome, the admin returns to idle so a failed reply
// is never re-sent implicitly.
func (c *ReplyCoordinator) HandleText(ctx context.Context, adminID int64, text string) {
	st := c.states.Get(adminID)
	if st.Kind != StateAwaitingReply || st.TargetUser == 0 {
		return
	}
	defer c.states.Clear(adminID)

	_, err := c.msgr.SendText(ctx, dm(st.TargetUser), replyDelivery(text),
		&kit.SendOptions{ParseMode: "HTML"})
	if err != nil {
		c.log.Warn("reply delivery failed",
			logx.Int64("admin_id", adminID), logx.Int64("user_id", st.TargetUser), logx.Err(err))
		c.notify(ctx, adminID, replyFailed(st.TargetUser), nil)
		return
	}

	if err := c.store.AppendMessage(ctx, storage.Message{
		UserID:    st.TargetUser,
		AdminID:   adminID,
		Text:      text,
		Direction: storage.DirectionAdminToUser,
	}); err != nil {
		c.log.Error("persist reply failed", logx.Int64("user_id", st.TargetUser), logx.Err(err))
	}

	c.notify(ctx, adminID, replySent(st.TargetUser), nil)
}

// Cancel aborts whatever flow the admin is in and confirms it.
func (c *ReplyCoordinator) Cancel(ctx context.Context, adminID int64) {
	c.states.Clear(adminID)
	c.notify(ctx, adminID, cancelledNotice, nil)
}

func (c *ReplyCoordinator) notify(ctx context.Context, adminID int64, text string, opt *kit.SendOptions) {
	if _, err := c.msgr.SendText(ctx, dm(adminID), text, opt); err != nil {
		c.log.Warn("admin notice failed", logx.Int64("admin_id", adminID), logx.Err(err))
	}
}
