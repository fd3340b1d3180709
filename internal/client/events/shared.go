// Package events holds the session-wide state the realtime channel writes and
// the views read: the latest inbound message and the presence map.
package events

import (
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

type Shared struct {
	latest   *Cell[*models.Message]
	inbound  *Feed[*models.Message]
	presence *Presence
}

type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithPresenceTTL sets how long presence entries stay fresh. Zero disables expiry.
func WithPresenceTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewShared(opts ...Option) *Shared {
	o := options{ttl: DefaultPresenceTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Shared{
		latest:   NewCell[*models.Message](nil),
		inbound:  NewFeed[*models.Message](),
		presence: newPresence(o.ttl, o.now),
	}
}

// PublishMessage replaces the latest inbound message and queues it for
// every message subscriber.
func (s *Shared) PublishMessage(m models.Message) {
	delivered := m
	s.latest.Set(&m)
	s.inbound.Publish(&delivered)
}

// UpsertPresence records a presence broadcast.
func (s *Shared) UpsertPresence(p models.Presence) {
	s.presence.Upsert(p)
}

// LatestMessage returns the unconsumed inbound message, if any. No message
// means no unread signal, not an empty history.
func (s *Shared) LatestMessage() (models.Message, bool) {
	m := s.latest.Get()
	if m == nil {
		return models.Message{}, false
	}
	return *m, true
}

// ConsumeFrom clears the latest message if it came from senderID and reports
// whether it did.
func (s *Shared) ConsumeFrom(senderID string) bool {
	consumed := false
	s.latest.Update(func(cur *models.Message) *models.Message {
		if cur != nil && cur.SenderID == senderID {
			consumed = true
			return nil
		}
		return cur
	})
	return consumed
}

func (s *Shared) ClearLatest() {
	s.latest.Set(nil)
}

// SubscribeMessages delivers every published message in arrival order,
// however far the reader falls behind. Clears are not delivered.
func (s *Shared) SubscribeMessages() (<-chan *models.Message, func()) {
	return s.inbound.Subscribe()
}

func (s *Shared) Presence() *Presence {
	return s.presence
}

// Reset drops all state, used at logout.
func (s *Shared) Reset() {
	s.latest.Set(nil)
	s.presence.Reset()
}
