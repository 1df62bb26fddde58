package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Admins    AdminsConfig    `json:"admins"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Relay     RelayConfig     `json:"relay,omitempty"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Digest    DigestConfig    `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is an optional chat id (as string) receiving forwarded log lines.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process maps (testing / throwaway runs)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AdminsConfig seeds the admin registry at startup. At least one id is
// required; the registry refuses to drop below one admin at runtime.
type AdminsConfig struct {
	Seed []int64 `json:"seed"`
}

// RateLimitConfig bounds inbound user messages per identity.
// Window is a Go duration string.
type RateLimitConfig struct {
	MaxEvents int    `json:"max_events,omitempty"` // default 5
	Window    string `json:"window,omitempty"`     // default "60s"
}

// RelayConfig tunes the user->admin relay engine.
//
// IdleTimeout, when set, resets conversation states (pending reply/broadcast
// input) that have been abandoned for longer than the given duration. Empty
// or "0s" disables the sweep.
type RelayConfig struct {
	FanoutTimeout string `json:"fanout_timeout,omitempty"` // per-admin delivery bound, default "10s"
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// BroadcastConfig tunes announcement fan-out to the whole user base.
type BroadcastConfig struct {
	Workers        int    `json:"workers,omitempty"`          // default 4
	RatePerSec     int    `json:"rate_per_sec,omitempty"`     // default 10
	PerSendTimeout string `json:"per_send_timeout,omitempty"` // default "10s"
	SnapshotLimit  int    `json:"snapshot_limit,omitempty"`   // default 10000
}

// DigestConfig controls the scheduled admin dashboard digest.
// Schedule is a standard 5-field cron expression.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default "0 9 * * *"
}
