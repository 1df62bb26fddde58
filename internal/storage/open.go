package storage

import (
	"context"
	"errors"
	"strings"

	logx "relaybot/pkg/logx"
)

// Store is the durable-state API used by the relay core.
//
// All operations are atomic at the single-record level; the core never needs
// multi-record transactions.
type Store interface {
	UpsertUser(ctx context.Context, id int64, username, firstName, lastName string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListActiveUsers(ctx context.Context, limit int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	CountActiveUsers(ctx context.Context) (int, error)
	SetBlocked(ctx context.Context, id int64, blocked bool) error

	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, userID int64, limit int, newestFirst bool) ([]Message, error)
	CountMessages(ctx context.Context) (int, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
