// Package ws is the realtime side of the server: a small STOMP 1.2 broker
// that authenticates CONNECT with a bearer token, routes /app/chat sends to
// the receiver's /user/queue/messages and broadcasts presence on
// /topic/status.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("ws")

type Store interface {
	UserByID(ctx context.Context, id string) (*storage.User, error)
	SaveMessage(ctx context.Context, payload models.ChatPayload) (*models.Message, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type Hub struct {
	store   Store
	tokens  TokenValidator
	limiter *ratelimit.RateLimiter
	now     func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]map[*Client]struct{}
}

func NewHub(store Store, tokens TokenValidator, limiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		store:   store,
		tokens:  tokens,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
		clients: make(map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
	}
}

// Online reports whether userID has at least one authenticated session.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	sessions := h.users[c.userID]
	if sessions == nil {
		sessions = make(map[*Client]struct{})
		h.users[c.userID] = sessions
	}
	sessions[c] = struct{}{}
	h.mu.Unlock()

	h.setPresence(c.userID, true)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	sessions := h.users[c.userID]
	delete(sessions, c)
	last := len(sessions) == 0
	if last {
		delete(h.users, c.userID)
	}
	h.mu.Unlock()

	// Other tabs or devices keep the user online.
	if last {
		h.setPresence(c.userID, false)
	}
}

func (h *Hub) setPresence(userID string, online bool) {
	now := h.now()
	if err := h.store.SetPresence(context.Background(), userID, online, now); err != nil {
		log.Warningf("failed to persist presence for %s: %v", userID, err)
	}

	body, err := json.Marshal(models.Presence{UserID: userID, IsOnline: online, LastSeen: now})
	if err != nil {
		log.Errorf("failed to encode presence: %v", err)
		return
	}
	h.broadcast(models.DestStatus, body)
}

// broadcast delivers body to every session subscribed to dest.
func (h *Hub) broadcast(dest string, body []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.deliver(dest, body)
	}
}

// sendToUser delivers body on a user destination (dest is the part after
// the /user prefix) to each of userID's sessions.
func (h *Hub) sendToUser(userID, dest string, body []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.users[userID] {
		if c.deliver(models.UserDestPrefix+dest, body) {
			n++
		}
	}
	return n
}

func (h *Hub) routeChat(ctx context.Context, c *Client, f *frame.Frame) {
	var payload models.ChatPayload
	if err := json.Unmarshal(f.Body, &payload); err != nil {
		c.sendError("malformed chat payload", f)
		return
	}
	// The authenticated session is the sender whatever the body claims.
	payload.SenderID = c.userID
	if payload.ReceiverID == "" || payload.Content == "" {
		c.sendError("receiverId and content are required", f)
		return
	}
	if _, err := h.store.UserByID(ctx, payload.ReceiverID); err != nil {
		c.sendError("User not found", f)
		return
	}

	msg, err := h.store.SaveMessage(ctx, payload)
	if err != nil {
		log.Errorf("failed to save message from %s: %v", c.userID, err)
		c.sendError("failed to save message", f)
		return
	}

	body, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("failed to encode message: %v", err)
		return
	}
	n := h.sendToUser(payload.ReceiverID, models.QueueMessages, body)
	log.Debugf("message %s from %s delivered to %d session(s)", msg.ID, c.userID, n)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
