package chat

import (
	"sort"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// Conversations is the conversation list with locally counted unread
// messages. Counts live only for the session.
type Conversations struct {
	items  []models.Conversation
	unread map[string]int
	active string
}

func NewConversations() *Conversations {
	return &Conversations{unread: make(map[string]int)}
}

func (c *Conversations) Items() []models.Conversation {
	out := make([]models.Conversation, len(c.items))
	for i, conv := range c.items {
		conv.UnreadCount = c.unread[conv.PeerUserID]
		out[i] = conv
	}
	return out
}

// Replace installs a fetched list, newest first, conversations without a
// last message at the end.
func (c *Conversations) Replace(list []models.Conversation) {
	items := make([]models.Conversation, len(list))
	copy(items, list)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].LastMessageTime, items[j].LastMessageTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	for _, conv := range items {
		if conv.UnreadCount > c.unread[conv.PeerUserID] {
			c.unread[conv.PeerUserID] = conv.UnreadCount
		}
	}
	c.items = items
}

// SetActive marks peerID as the open thread and clears its unread count.
func (c *Conversations) SetActive(peerID string) {
	c.active = peerID
	if peerID != "" {
		delete(c.unread, peerID)
	}
}

// Promote moves the conversation m belongs to to the top, creating it if
// needed. Messages from a peer whose thread is not open count as unread.
func (c *Conversations) Promote(m models.Message, selfID string) {
	peerID := m.SenderID
	if peerID == selfID {
		peerID = m.ReceiverID
	}
	if peerID == "" {
		return
	}

	conv := models.Conversation{PeerUserID: peerID}
	for i, existing := range c.items {
		if existing.PeerUserID == peerID {
			conv = existing
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}

	ts := time.Now()
	if m.Timestamp != nil {
		ts = *m.Timestamp
	}
	conv.LastMessage = m.Content
	conv.LastMessageTime = &ts
	conv.LastMessageSenderID = m.SenderID
	c.items = append([]models.Conversation{conv}, c.items...)

	if m.SenderID == peerID && peerID != c.active {
		c.unread[peerID]++
	}
}

func (c *Conversations) Unread(peerID string) int {
	return c.unread[peerID]
}

func (c *Conversations) TotalUnread() int {
	total := 0
	for _, n := range c.unread {
		total += n
	}
	return total
}

func (c *Conversations) Reset() {
	c.items = nil
	c.unread = make(map[string]int)
	c.active = ""
}
