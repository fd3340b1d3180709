package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/cloudzz-dev/cldzchat/internal/wsconn"
	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	t      *testing.T
	store  *storage.Store
	auth   *auth.Service
	hub    *Hub
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	limiter := ratelimit.New(ratelimit.Config{AuthPerMinute: 100})
	authSvc := auth.New("test-jwt-secret")
	hub := NewHub(store, authSvc, limiter)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeConn(r.Context(), wsconn.New(conn), ratelimit.GetClientIP(r))
	}))

	t.Cleanup(func() {
		hub.Close()
		server.Close()
		limiter.Stop()
		store.Close()
	})
	return &testEnv{t: t, store: store, auth: authSvc, hub: hub, server: server}
}

func (e *testEnv) user(username string) (*storage.User, string) {
	e.t.Helper()
	u := &storage.User{
		User:         models.User{Name: username, Username: username, Email: username + "@example.com"},
		PasswordHash: "hash",
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		e.t.Fatalf("CreateUser: %v", err)
	}
	token, err := e.auth.GenerateToken(u.ID, u.Email)
	if err != nil {
		e.t.Fatalf("GenerateToken: %v", err)
	}
	return u, token
}

func (e *testEnv) connect(token string) (*stomp.Conn, error) {
	e.t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		e.t.Fatalf("Dial: %v", err)
	}
	return stomp.Connect(wsconn.New(ws),
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.HeartBeat(0, 0),
	)
}

func (e *testEnv) mustConnect(token string) *stomp.Conn {
	e.t.Helper()
	conn, err := e.connect(token)
	if err != nil {
		e.t.Fatalf("stomp connect: %v", err)
	}
	e.t.Cleanup(func() { conn.MustDisconnect() })
	return conn
}

func subscribe(t *testing.T, conn *stomp.Conn, dest string) *stomp.Subscription {
	t.Helper()
	sub, err := conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		t.Fatalf("Subscribe(%s): %v", dest, err)
	}
	// Frames are handled in order, so a receipted SEND means the broker
	// has seen the subscription.
	if err := conn.Send("/app/sync", "text/plain", nil, stomp.SendOpt.Receipt); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return sub
}

func receive(t *testing.T, sub *stomp.Subscription, v any) {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		if msg.Err != nil {
			t.Fatalf("subscription error: %v", msg.Err)
		}
		if err := json.Unmarshal(msg.Body, v); err != nil {
			t.Fatalf("decode %s: %v", msg.Body, err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
}

func TestChatDelivery(t *testing.T) {
	env := newTestEnv(t)
	ann, annToken := env.user("ann")
	bob, bobToken := env.user("bob")

	bobConn := env.mustConnect(bobToken)
	inbox := subscribe(t, bobConn, models.DestUserMessages)

	annConn := env.mustConnect(annToken)
	body, _ := json.Marshal(models.ChatPayload{SenderID: bob.ID, ReceiverID: bob.ID, Content: "hello"})
	if err := annConn.Send(models.DestChat, "application/json", body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got models.Message
	receive(t, inbox, &got)
	if got.SenderID != ann.ID || got.ReceiverID != bob.ID || got.Content != "hello" {
		t.Errorf("unexpected message: %+v", got)
	}
	if got.ID == "" || got.ChatID == "" || got.Timestamp == nil {
		t.Errorf("expected a stored message, got %+v", got)
	}

	history, err := env.store.Messages(context.Background(), ann.ID, bob.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(history) != 1 || history[0].ID != got.ID {
		t.Errorf("expected message to be persisted, got %+v", history)
	}
}

func TestPresenceBroadcast(t *testing.T) {
	env := newTestEnv(t)
	_, annToken := env.user("ann")
	bob, bobToken := env.user("bob")

	annConn := env.mustConnect(annToken)
	status := subscribe(t, annConn, models.DestStatus)

	bobConn, err := env.connect(bobToken)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	var p models.Presence
	receive(t, status, &p)
	if p.UserID != bob.ID || !p.IsOnline || p.LastSeen.IsZero() {
		t.Errorf("unexpected online presence: %+v", p)
	}
	if !env.hub.Online(bob.ID) {
		t.Error("expected hub to report bob online")
	}

	if err := bobConn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	receive(t, status, &p)
	if p.UserID != bob.ID || p.IsOnline {
		t.Errorf("unexpected offline presence: %+v", p)
	}

	stored, err := env.store.UserByID(context.Background(), bob.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if stored.Online || stored.LastSeen == nil {
		t.Errorf("expected offline with lastSeen, got online=%v lastSeen=%v", stored.Online, stored.LastSeen)
	}
}

func TestConnectRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	env.user("ann")

	if _, err := env.connect("not-a-token"); err == nil {
		t.Fatal("expected CONNECT with a bad token to fail")
	}

	other := auth.New("other-secret")
	token, _ := other.GenerateToken("ghost", "ghost@example.com")
	if _, err := env.connect(token); err == nil {
		t.Fatal("expected CONNECT with a foreign token to fail")
	}
}
