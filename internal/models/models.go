package models

import (
	"encoding/json"
	"time"
)

// STOMP destinations shared by the client and the reference server.
const (
	DestUserMessages = "/user/queue/messages"
	DestStatus       = "/topic/status"
	DestChat         = "/app/chat"

	UserDestPrefix = "/user"
	QueueMessages  = "/queue/messages"
)

type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

// Identity is the part of a user that is kept in the local session.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

func (u User) Identity() Identity {
	return Identity{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
	}
}

type AuthResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

func (r AuthResponse) Identity() Identity {
	return Identity{ID: r.ID, Name: r.Name, Username: r.Username, Email: r.Email}
}

type Message struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chatId"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`

	// ClientID tags messages appended locally before the server has seen them.
	ClientID string `json:"-"`
}

// Pending reports whether m is a local optimistic entry.
func (m Message) Pending() bool {
	return m.ClientID != "" && m.ID == ""
}

// ChatPayload is the body of SEND /app/chat and of /user/queue/messages frames.
type ChatPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type Conversation struct {
	PeerUserID          string     `json:"peerUserId"`
	Name                string     `json:"name"`
	Username            string     `json:"username"`
	AvatarURL           string     `json:"avatarUrl,omitempty"`
	LastMessage         string     `json:"lastMessage,omitempty"`
	LastMessageTime     *time.Time `json:"lastMessageTime,omitempty"`
	LastMessageSenderID string     `json:"lastMessageSenderId,omitempty"`
	UnreadCount         int        `json:"unreadCount"`
}

// UnmarshalJSON also accepts the legacy "odUserId" key some backends emit.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type plain Conversation
	var aux struct {
		plain
		LegacyPeer string `json:"odUserId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Conversation(aux.plain)
	if c.PeerUserID == "" {
		c.PeerUserID = aux.LegacyPeer
	}
	return nil
}

type Presence struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// UnmarshalJSON accepts lastSeen with or without a zone offset; zoneless
// values are read as UTC.
func (p *Presence) UnmarshalJSON(data []byte) error {
	var aux struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
		LastSeen string `json:"lastSeen"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.UserID = aux.UserID
	p.IsOnline = aux.IsOnline
	p.LastSeen = time.Time{}
	if aux.LastSeen != "" {
		t, err := ParseTime(aux.LastSeen)
		if err != nil {
			return err
		}
		p.LastSeen = t
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime parses the timestamp formats chat backends emit.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Bio      string `json:"bio"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ErrorResponse is the error body returned by the backend.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
