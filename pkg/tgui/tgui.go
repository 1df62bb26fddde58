package tgui

import (
	tele "gopkg.in/telebot.v4"

	kit "relaybot/internal/transport"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Inline().
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (not encoded here).
// Use callback.go helpers to build "scope:action:payload" safely.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// ActionMarkup converts transport action rows into a Telegram inline keyboard.
// Returns nil when there are no actions, so callers can pass it straight to
// telebot send options.
func ActionMarkup(rows [][]kit.Action) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	in := NewInline()
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		btns := make([]tele.Btn, 0, len(row))
		for _, a := range row {
			btns = append(btns, Btn(a.Label, a.Data))
		}
		in.Row(btns...)
	}
	return in.Markup()
}
