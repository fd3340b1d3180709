package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/app"
	"github.com/cloudzz-dev/cldzchat/internal/client/events"
	"github.com/cloudzz-dev/cldzchat/internal/client/realtime"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

type stubGateway struct {
	convs []models.Conversation
}

func (g *stubGateway) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return &models.AuthResponse{ID: "u1", Name: req.Name, Username: req.Username, Email: req.Email, Token: "tok"}, nil
}

func (g *stubGateway) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return &models.AuthResponse{ID: "u1", Name: "Ann", Username: "ann", Email: req.Email, Token: "tok"}, nil
}

func (g *stubGateway) ListUsers(ctx context.Context) ([]models.User, error) { return nil, nil }

func (g *stubGateway) GetUser(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Name: "Bob", Username: "bob"}, nil
}

func (g *stubGateway) SearchUsers(ctx context.Context, query, currentUserID string) ([]models.User, error) {
	return []models.User{{ID: "u2", Name: "Bob", Username: "bob"}}, nil
}

func (g *stubGateway) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return g.convs, nil
}

func (g *stubGateway) Messages(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	return nil, nil
}

func (g *stubGateway) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Name: "Ann", Username: "ann"}, nil
}

func (g *stubGateway) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error) {
	return &models.User{ID: userID, Name: update.Name, Username: update.Username, Email: update.Email, Bio: update.Bio}, nil
}

func (g *stubGateway) ChangePassword(ctx context.Context, userID string, change models.PasswordChange, confirm string) error {
	return nil
}

func (g *stubGateway) UploadAvatarFile(ctx context.Context, userID, path string) (*models.User, error) {
	return &models.User{ID: userID}, nil
}

func (g *stubGateway) DeleteAvatar(ctx context.Context, userID string) error { return nil }

type stubChannel struct {
	mu   sync.Mutex
	sent []models.ChatPayload
}

func (c *stubChannel) Start(ctx context.Context) {}
func (c *stubChannel) Stop()                     {}

func (c *stubChannel) Send(p models.ChatPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, p)
	return nil
}

func (c *stubChannel) Status() realtime.Status {
	return realtime.Status{State: realtime.Connected}
}

func (c *stubChannel) Subscribe() (<-chan realtime.Status, func()) {
	return make(chan realtime.Status), func() {}
}

func newTestModel(t *testing.T, loggedIn bool) (Model, *stubChannel) {
	t.Helper()
	store := session.NewAt(t.TempDir())
	if loggedIn {
		if err := store.Save(models.Identity{ID: "u1", Name: "Ann", Username: "ann"}, "tok"); err != nil {
			t.Fatal(err)
		}
	}
	ch := &stubChannel{}
	a := app.New(context.Background(), store, &stubGateway{}, ch, events.NewShared())
	m := New(context.Background(), a)
	t.Cleanup(m.Close)
	return m, ch
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func TestStartsOnLoginWhenAnonymous(t *testing.T) {
	m, _ := newTestModel(t, false)
	if m.view != viewLogin {
		t.Fatalf("view = %v, want login", m.view)
	}
	if !strings.Contains(m.View(), "Log in") {
		t.Error("login screen not rendered")
	}
}

func TestResumesSession(t *testing.T) {
	m, _ := newTestModel(t, true)
	if m.view != viewConversations {
		t.Fatalf("view = %v, want conversations", m.view)
	}
	if !strings.Contains(m.View(), "connected") {
		t.Error("status indicator missing from header")
	}
}

func TestRedirectReturnsToLogin(t *testing.T) {
	m, _ := newTestModel(t, true)
	m = update(t, m, redirectMsg{})
	if m.view != viewLogin {
		t.Fatalf("view = %v, want login", m.view)
	}
	if !strings.Contains(m.View(), "session has expired") {
		t.Error("expiry banner missing")
	}
}

func TestLoginSuccessShowsConversations(t *testing.T) {
	m, _ := newTestModel(t, false)
	id := models.Identity{ID: "u1"}
	m = update(t, m, authMsg{identity: &id})
	if m.view != viewConversations {
		t.Errorf("view = %v, want conversations", m.view)
	}
}

func TestSendAppendsImmediately(t *testing.T) {
	m, ch := newTestModel(t, true)
	next, _ := m.enterChat("u2", &models.User{ID: "u2", Name: "Bob"})
	m = next.(Model)
	m = update(t, m, threadMsg{peerID: "u2"})
	if _, err := m.app.OpenThread(context.Background(), "u2"); err != nil {
		t.Fatal(err)
	}

	m = typeText(t, m, "hello bob")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if !strings.Contains(m.viewport.View(), "hello bob") {
		t.Errorf("sent message not rendered:\n%s", m.viewport.View())
	}
	if len(ch.sent) != 1 || ch.sent[0].ReceiverID != "u2" || ch.sent[0].Content != "hello bob" {
		t.Errorf("published = %+v", ch.sent)
	}
	if m.input.Value() != "" {
		t.Error("input should clear after send")
	}
}

func TestStatusChangeShowsInHeader(t *testing.T) {
	m, _ := newTestModel(t, true)
	m = update(t, m, statusMsg{status: realtime.Status{State: realtime.Reconnecting}})
	if !strings.Contains(m.View(), "reconnecting") {
		t.Errorf("header = %q", m.header())
	}
}

func TestInboundFromOtherPeerShowsUnread(t *testing.T) {
	m, _ := newTestModel(t, true)
	msg := models.Message{SenderID: "u3", ReceiverID: "u1", Content: "psst"}
	m = update(t, m, inboundMsg{msg: &msg})

	if len(m.convs) != 1 || m.convs[0].PeerUserID != "u3" || m.convs[0].UnreadCount != 1 {
		t.Fatalf("convs = %+v", m.convs)
	}
	if !strings.Contains(m.View(), "psst") {
		t.Error("last message preview missing")
	}
}

func TestSearchSchedulesDebounce(t *testing.T) {
	m, _ := newTestModel(t, true)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if m.view != viewSearch {
		t.Fatalf("view = %v, want search", m.view)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("typing should schedule a debounced search")
	}
	search := m.app.SearchState()
	if q := search.Query(); q != "b" {
		t.Errorf("query = %q", q)
	}
}

func TestLogoutKeyClearsSession(t *testing.T) {
	m, _ := newTestModel(t, true)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	if m.view != viewLogin {
		t.Errorf("view = %v, want login", m.view)
	}
	if state, _ := m.app.Guard(); state != session.Anonymous {
		t.Error("session not cleared")
	}
}
