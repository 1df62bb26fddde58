package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryUserLifecycle(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	ctx := context.Background()

	if _, err := s.GetUser(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: want ErrNotFound, got %v", err)
	}

	u, err := s.UpsertUser(ctx, 1, "ada", "Ada", "Lovelace")
	if err != nil {
		t.Fatal(err)
	}
	if u.CreatedAt.IsZero() || u.LastActive.IsZero() {
		t.Fatal("upsert must stamp timestamps")
	}
	created := u.CreatedAt

	u2, err := s.UpsertUser(ctx, 1, "ada", "Ada", "L")
	if err != nil {
		t.Fatal(err)
	}
	if !u2.CreatedAt.Equal(created) {
		t.Fatal("re-upsert must keep the original created_at")
	}
	if u2.LastName != "L" {
		t.Fatal("re-upsert must refresh display fields")
	}

	if err := s.SetBlocked(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	if u, _ := s.GetUser(ctx, 1); !u.Blocked {
		t.Fatal("block flag must stick")
	}
	if err := s.SetBlocked(ctx, 99, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blocking a missing user: want ErrNotFound, got %v", err)
	}
}

func TestMemoryActiveUsersExcludeBlocked(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		if _, err := s.UpsertUser(ctx, id, "", "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetBlocked(ctx, 2, true); err != nil {
		t.Fatal(err)
	}

	users, err := s.ListActiveUsers(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("want 2 active users, got %d", len(users))
	}
	for _, u := range users {
		if u.ID == 2 {
			t.Fatal("blocked user must not be listed")
		}
	}

	if n, _ := s.CountUsers(ctx); n != 3 {
		t.Fatalf("want 3 total, got %d", n)
	}
	if n, _ := s.CountActiveUsers(ctx); n != 2 {
		t.Fatalf("want 2 active, got %d", n)
	}
}

func TestMemoryMessages(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if err := s.AppendMessage(ctx, Message{UserID: 1, Text: text, Direction: DirectionUserToAdmin}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendMessage(ctx, Message{UserID: 2, Text: "other", Direction: DirectionUserToAdmin}); err != nil {
		t.Fatal(err)
	}

	oldest, err := s.ListMessages(ctx, 1, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldest) != 2 || oldest[0].Text != "first" {
		t.Fatalf("oldest-first: got %+v", oldest)
	}

	newest, err := s.ListMessages(ctx, 1, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 2 || newest[0].Text != "third" {
		t.Fatalf("newest-first: got %+v", newest)
	}

	if n, _ := s.CountMessages(ctx); n != 4 {
		t.Fatalf("want 4 messages total, got %d", n)
	}
}

func TestUserDisplayName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		u    User
		want string
	}{
		{"full name", User{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"first only", User{FirstName: "Ada"}, "Ada"},
		{"username fallback", User{Username: "ada"}, "@ada"},
		{"nothing", User{}, "(unknown)"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.u.DisplayName(); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}
