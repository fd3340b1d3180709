package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, name, username, email string) *User {
	t.Helper()
	u := &User{
		User:         models.User{Name: name, Username: username, Email: email},
		PasswordHash: "hash",
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		url, driver, dsn string
	}{
		{"postgres://localhost/cldzchat?sslmode=disable", driverPostgres, "postgres://localhost/cldzchat?sslmode=disable"},
		{"postgresql://localhost/cldzchat", driverPostgres, "postgresql://localhost/cldzchat"},
		{"sqlite://chat.db", driverSQLite, "chat.db"},
		{":memory:", driverSQLite, ":memory:"},
	}
	for _, tt := range tests {
		driver, dsn := driverFor(tt.url)
		if driver != tt.driver || dsn != tt.dsn {
			t.Errorf("driverFor(%q) = %q, %q", tt.url, driver, dsn)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: driverPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query: %s", got)
	}
	lite := &Store{driver: driverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("unexpected sqlite query: %s", got)
	}
}

func TestCreateUserUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createUser(t, s, "Ann", "ann", "ann@example.com")

	err := s.CreateUser(ctx, &User{User: models.User{Name: "X", Username: "other", Email: "ann@example.com"}})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	err = s.CreateUser(ctx, &User{User: models.User{Name: "X", Username: "ann", Email: "x@example.com"}})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "Ann Lee", "ann", "ann@example.com")
	createUser(t, s, "Annabel", "bella", "bella@example.com")
	createUser(t, s, "Bob", "bob", "bob@example.com")

	users, err := s.SearchUsers(ctx, "ANN", ann.ID, 20)
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(users) != 1 || users[0].Username != "bella" {
		t.Errorf("expected only bella, got %+v", users)
	}

	users, err = s.SearchUsers(ctx, "   ", "", 20)
	if err != nil || len(users) != 0 {
		t.Errorf("expected no results for blank query, got %+v, %v", users, err)
	}

	users, err = s.SearchUsers(ctx, "b", "", 1)
	if err != nil || len(users) != 1 {
		t.Errorf("expected limit to apply, got %+v, %v", users, err)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "Ann", "ann", "ann@example.com")
	createUser(t, s, "Bob", "bob", "bob@example.com")

	if _, err := s.UpdateProfile(ctx, ann.ID, models.ProfileUpdate{Username: "bob"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := s.UpdateProfile(ctx, ann.ID, models.ProfileUpdate{Email: "bob@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	u, err := s.UpdateProfile(ctx, ann.ID, models.ProfileUpdate{Name: "Ann L", Username: "ann", Bio: "hi"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Name != "Ann L" || u.Bio != "hi" || u.Email != "ann@example.com" {
		t.Errorf("unexpected user after update: %+v", u.User)
	}

	stored, err := s.UserByID(ctx, ann.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if stored.Name != "Ann L" || stored.Bio != "hi" {
		t.Errorf("update not persisted: %+v", stored.User)
	}
}

func TestPresenceAndAvatar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "Ann", "ann", "ann@example.com")

	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SetPresence(ctx, ann.ID, true, seen); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}
	if err := s.SetAvatar(ctx, ann.ID, "http://x/api/files/avatars/a.png"); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}

	u, err := s.UserByID(ctx, ann.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if !u.Online || u.LastSeen == nil || !u.LastSeen.Equal(seen) {
		t.Errorf("unexpected presence: online=%v lastSeen=%v", u.Online, u.LastSeen)
	}
	if u.AvatarURL != "http://x/api/files/avatars/a.png" {
		t.Errorf("unexpected avatar: %q", u.AvatarURL)
	}

	if err := s.SetAvatar(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessagesAndConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ann := createUser(t, s, "Ann", "ann", "ann@example.com")
	bob := createUser(t, s, "Bob", "bob", "bob@example.com")
	cat := createUser(t, s, "Cat", "cat", "cat@example.com")
	dan := createUser(t, s, "Dan", "dan", "dan@example.com")

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	send := func(from, to *User, content string) {
		t.Helper()
		if _, err := s.SaveMessage(ctx, models.ChatPayload{SenderID: from.ID, ReceiverID: to.ID, Content: content}); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	send(ann, bob, "hi bob")
	send(bob, ann, "hi ann")
	send(ann, cat, "hi cat")

	// Opening a thread creates the room even without messages.
	if _, err := s.Messages(ctx, ann.ID, dan.ID); err != nil {
		t.Fatalf("Messages: %v", err)
	}

	msgs, err := s.Messages(ctx, bob.ID, ann.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi bob" || msgs[1].Content != "hi ann" {
		t.Fatalf("unexpected history: %+v", msgs)
	}
	if msgs[0].ChatID == "" || msgs[0].ChatID != msgs[1].ChatID {
		t.Errorf("expected both messages in one room: %+v", msgs)
	}

	convs, err := s.Conversations(ctx, ann.ID)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %+v", convs)
	}
	if convs[0].PeerUserID != cat.ID || convs[0].LastMessage != "hi cat" || convs[0].LastMessageSenderID != ann.ID {
		t.Errorf("expected cat first, got %+v", convs[0])
	}
	if convs[1].PeerUserID != bob.ID || convs[1].LastMessage != "hi ann" {
		t.Errorf("expected bob second, got %+v", convs[1])
	}
	if convs[2].PeerUserID != dan.ID || convs[2].LastMessageTime != nil {
		t.Errorf("expected empty dan room last, got %+v", convs[2])
	}
}
