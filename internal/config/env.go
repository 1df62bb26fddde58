package config

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v10"
)

// envOverrides mirrors the environment variables understood by earlier
// deployments of this bot, so the same .env keeps working. Values set in the
// environment win over the config file on every (re)load.
type envOverrides struct {
	Token             string  `env:"BOT_TOKEN"`
	AdminIDs          []int64 `env:"ADMIN_IDS"`
	RateLimitMessages int     `env:"RATE_LIMIT_MESSAGES"`
	RateLimitWindow   int     `env:"RATE_LIMIT_WINDOW"` // seconds
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if o.Token != "" {
		cfg.Telegram.Token = o.Token
	}
	if len(o.AdminIDs) > 0 {
		cfg.Admins.Seed = append([]int64(nil), o.AdminIDs...)
	}
	if o.RateLimitMessages > 0 {
		cfg.RateLimit.MaxEvents = o.RateLimitMessages
	}
	if o.RateLimitWindow > 0 {
		cfg.RateLimit.Window = strconv.Itoa(o.RateLimitWindow) + "s"
	}
	return nil
}
