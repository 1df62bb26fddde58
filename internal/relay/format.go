package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	"relaybot/pkg/tgui"
)

// Callback routing vocabulary. The router parses incoming callback data back
// into these scopes and actions.
const (
	ScopeRelay     = "relay"
	ScopeBroadcast = "bcast"

	ActionReply   = "reply"
	ActionBlock   = "block"
	ActionUnblock = "unblock"
	ActionHistory = "history"
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
)

const (
	// mediaPlaceholder stands in for attachments with no caption. Media
	// content itself is not forwarded.
	mediaPlaceholder = "[media]"

	blockedNotice = "You are not able to use this bot."
	relayAckOK    = "Your message has been forwarded to the admin team. You will get a reply here."
	relayAckFail  = "Your message could not be delivered right now. Please try again later."

	cancelledNotice = "Cancelled."

	replyPromptSuffix = "Type your reply, or /cancel to abort."
	broadcastMissing  = "There is no pending broadcast. Start again with /broadcast."
)

func throttleNotice(retry time.Duration) string {
	secs := int64(retry / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Please slow down. Try again in %d seconds.", secs)
}

// adminRelayNotice is the HTML card shown to each admin for an inbound
// user message.
func adminRelayNotice(u storage.User, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tgui.B("New message"))
	fmt.Fprintf(&b, "From: %s\n", tgui.Esc(u.DisplayName()))
	if u.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", tgui.Esc(u.Username))
	}
	fmt.Fprintf(&b, "ID: %s\n\n", tgui.Code(strconv.FormatInt(u.ID, 10)))
	b.WriteString(tgui.Esc(text).String())
	return b.String()
}

// relayActions is the per-user action row attached to every relay notice.
func relayActions(userID int64, blocked bool) [][]kit.Action {
	payload := strconv.FormatInt(userID, 10)
	blockBtn := kit.Action{Label: "Block", Data: tgui.Data(ScopeRelay, ActionBlock, payload)}
	if blocked {
		blockBtn = kit.Action{Label: "Unblock", Data: tgui.Data(ScopeRelay, ActionUnblock, payload)}
	}
	return [][]kit.Action{
		{
			{Label: "Reply", Data: tgui.Data(ScopeRelay, ActionReply, payload)},
			blockBtn,
		},
		{
			{Label: "History", Data: tgui.Data(ScopeRelay, ActionHistory, payload)},
		},
	}
}

func replyPrompt(u storage.User) string {
	return fmt.Sprintf("Replying to %s (ID: %d).\n%s",
		tgui.Esc(u.DisplayName()), u.ID, replyPromptSuffix)
}

func replySent(userID int64) string {
	return fmt.Sprintf("Reply delivered to user %d.", userID)
}

func replyFailed(userID int64) string {
	return fmt.Sprintf("Could not deliver the reply to user %d.", userID)
}

// replyDelivery is what the target user receives.
func replyDelivery(text string) string {
	return fmt.Sprintf("%s\n\n%s", tgui.B("Reply from admin"), tgui.Esc(text))
}

func broadcastPrompt(reach int) string {
	return fmt.Sprintf("Broadcast will reach about %d users.\nType the message, or /cancel to abort.", reach)
}

func broadcastPreview(body string, reach int) string {
	return fmt.Sprintf("%s\n\n%s\n\nSend to %d users?",
		tgui.B("Broadcast preview"), tgui.Esc(body), reach)
}

func broadcastActions() [][]kit.Action {
	return [][]kit.Action{
		{
			{Label: "Send", Data: tgui.Data(ScopeBroadcast, ActionConfirm, "")},
			{Label: "Cancel", Data: tgui.Data(ScopeBroadcast, ActionCancel, "")},
		},
	}
}

// broadcastDelivery is what each recipient receives.
func broadcastDelivery(body string) string {
	return fmt.Sprintf("%s\n\n%s", tgui.B("Announcement"), tgui.Esc(body))
}

func broadcastSummary(t Tally) string {
	return fmt.Sprintf("Broadcast finished.\nSent: %d\nFailed: %d", t.Sent, t.Failed)
}

// DashboardText renders the operator stats card shown by /dashboard and the
// scheduled digest.
func DashboardText(totalUsers, activeUsers, messages, admins int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", tgui.B("Dashboard"))
	fmt.Fprintf(&b, "Users: %d (%d active)\n", totalUsers, activeUsers)
	fmt.Fprintf(&b, "Messages: %d\n", messages)
	fmt.Fprintf(&b, "Admins: %d", admins)
	return b.String()
}

// HistoryText renders the recent conversation with one user, oldest first.
// Exposed for the router's history command and callback.
func HistoryText(u storage.User, msgs []storage.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %s (%s)\n",
		tgui.B("History"), tgui.Esc(u.DisplayName()), tgui.Code(strconv.FormatInt(u.ID, 10)))
	if len(msgs) == 0 {
		b.WriteString("\nNo messages yet.")
		return b.String()
	}
	for _, m := range msgs {
		who := "user"
		if m.Direction == storage.DirectionAdminToUser {
			who = "admin"
		}
		fmt.Fprintf(&b, "\n%s %s: %s",
			tgui.I(m.CreatedAt.Format("02 Jan 15:04")), tgui.B(who),
			tgui.Esc(tgui.TruncRunes(m.Text, 200)))
	}
	return b.String()
}
