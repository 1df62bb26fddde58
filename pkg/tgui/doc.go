// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (incl. transport Action rows)
//   - Callback data helpers (scope:action:payload)
//   - HTML escaping for ParseMode="HTML"
package tgui
