package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory. Used by tests and for
// throwaway runs without a database file. Same single-record atomicity
// contract as the sqlite driver.
type memoryStore struct {
	mu       sync.Mutex
	users    map[int64]User
	messages []Message
}

func NewMemory() Store {
	return &memoryStore{users: map[int64]User{}}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) UpsertUser(_ context.Context, id int64, username, firstName, lastName string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u, ok := s.users[id]
	if !ok {
		u = User{ID: id, CreatedAt: now}
	}
	u.Username = username
	u.FirstName = firstName
	u.LastName = lastName
	u.LastActive = now
	s.users[id] = u
	return u, nil
}

func (s *memoryStore) GetUser(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *memoryStore) ListActiveUsers(_ context.Context, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if !u.Blocked {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memoryStore) CountActiveUsers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if !u.Blocked {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) SetBlocked(_ context.Context, id int64, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Blocked = blocked
	s.users[id] = u
	return nil
}

func (s *memoryStore) AppendMessage(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *memoryStore) ListMessages(_ context.Context, userID int64, limit int, newestFirst bool) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []Message
	if newestFirst {
		for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
			if s.messages[i].UserID == userID {
				out = append(out, s.messages[i])
			}
		}
		return out, nil
	}
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memoryStore) CountMessages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages), nil
}
