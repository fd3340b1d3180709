// Package chat holds the view state behind the conversation list, the open
// thread and user search. It does no I/O.
package chat

import (
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/google/uuid"
)

// ReconcileWindow is how far a server timestamp may be from the local send
// time for the two to be treated as the same message.
const ReconcileWindow = 2 * time.Minute

// Thread is the visible message list of one conversation.
type Thread struct {
	SelfID string
	PeerID string

	messages []models.Message
	now      func() time.Time
}

func NewThread(selfID, peerID string) *Thread {
	return &Thread{SelfID: selfID, PeerID: peerID, now: time.Now}
}

func (t *Thread) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Thread) Len() int {
	return len(t.messages)
}

// AppendOptimistic adds a locally sent message before the server has seen
// it and returns the entry, tagged with a fresh ClientID.
func (t *Thread) AppendOptimistic(content string) models.Message {
	ts := t.now()
	m := models.Message{
		SenderID:   t.SelfID,
		ReceiverID: t.PeerID,
		Content:    content,
		Timestamp:  &ts,
		ClientID:   uuid.NewString(),
	}
	t.messages = append(t.messages, m)
	return m
}

// AppendInbound adds a pushed message if it belongs to this thread.
func (t *Thread) AppendInbound(m models.Message) bool {
	if m.SenderID != t.PeerID || (m.ReceiverID != "" && m.ReceiverID != t.SelfID) {
		return false
	}
	if m.Timestamp == nil {
		ts := t.now()
		m.Timestamp = &ts
	}
	t.messages = append(t.messages, m)
	return true
}

// Replace installs an authoritative history. Pending local entries that the
// history already contains are dropped; the rest stay at the end in send
// order.
func (t *Thread) Replace(history []models.Message) {
	claimed := make([]bool, len(history))
	var pending []models.Message
	for _, local := range t.messages {
		if !local.Pending() {
			continue
		}
		if i := t.match(local, history, claimed); i >= 0 {
			claimed[i] = true
			continue
		}
		pending = append(pending, local)
	}

	msgs := make([]models.Message, 0, len(history)+len(pending))
	msgs = append(msgs, history...)
	msgs = append(msgs, pending...)
	t.messages = msgs
}

func (t *Thread) match(local models.Message, history []models.Message, claimed []bool) int {
	for i, m := range history {
		if claimed[i] || m.SenderID != local.SenderID || m.ReceiverID != local.ReceiverID || m.Content != local.Content {
			continue
		}
		if m.Timestamp == nil || local.Timestamp == nil {
			return i
		}
		d := m.Timestamp.Sub(*local.Timestamp)
		if d < 0 {
			d = -d
		}
		if d <= ReconcileWindow {
			return i
		}
	}
	return -1
}

// Undelivered reports whether m is a local entry that no history fetch has
// confirmed within the reconcile window.
func (t *Thread) Undelivered(m models.Message) bool {
	return m.Pending() && m.Timestamp != nil && t.now().Sub(*m.Timestamp) > ReconcileWindow
}
