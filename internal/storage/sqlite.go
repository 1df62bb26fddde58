package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "relaybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, id int64, username, firstName, lastName string) (User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, first_name, last_name, is_blocked, created_at, last_active)
		 VALUES(?,?,?,?,0,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   username=excluded.username,
		   first_name=excluded.first_name,
		   last_name=excluded.last_name,
		   last_active=excluded.last_active`,
		id, nullStr(username), nullStr(firstName), nullStr(lastName),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, id)
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name, is_blocked, created_at, last_active
		 FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) ListActiveUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, first_name, last_name, is_blocked, created_at, last_active
		 FROM users WHERE is_blocked = 0
		 ORDER BY last_active DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *sqliteStore) CountActiveUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_blocked = 0`).Scan(&n)
	return n, err
}

func (s *sqliteStore) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_blocked = ? WHERE id = ?`, boolInt(blocked), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendMessage(ctx context.Context, m Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var adminID any
	if m.AdminID != 0 {
		adminID = m.AdminID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(user_id, admin_id, text, direction, created_at) VALUES(?,?,?,?,?)`,
		m.UserID, adminID, m.Text, string(m.Direction), m.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListMessages(ctx context.Context, userID int64, limit int, newestFirst bool) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, admin_id, text, direction, created_at
		 FROM messages WHERE user_id = ? ORDER BY id `+order+` LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			adminID sql.NullInt64
			dir     string
			created string
		)
		if err := rows.Scan(&m.UserID, &adminID, &m.Text, &dir, &created); err != nil {
			return nil, err
		}
		m.AdminID = adminID.Int64
		m.Direction = Direction(dir)
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var (
		u                   User
		username, first, last sql.NullString
		blocked             int
		created, active     string
	)
	if err := r.Scan(&u.ID, &username, &first, &last, &blocked, &created, &active); err != nil {
		return User{}, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Blocked = blocked != 0
	u.CreatedAt = parseTime(created)
	u.LastActive = parseTime(active)
	return u, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
