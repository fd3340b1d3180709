package events

import (
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// DefaultPresenceTTL bounds how long a presence entry is trusted without a
// newer broadcast.
const DefaultPresenceTTL = 10 * time.Minute

type presenceEntry struct {
	status   models.Presence
	received time.Time
}

// Presence is the per-user online map. Writes replace the entry for a user;
// entries are never removed, only aged out of lookups by the TTL.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
	ttl     time.Duration
	now     func() time.Time
	version *Cell[uint64]
}

func newPresence(ttl time.Duration, now func() time.Time) *Presence {
	return &Presence{
		entries: make(map[string]presenceEntry),
		ttl:     ttl,
		now:     now,
		version: NewCell[uint64](0),
	}
}

func (p *Presence) Upsert(status models.Presence) {
	if status.UserID == "" {
		return
	}
	p.mu.Lock()
	p.entries[status.UserID] = presenceEntry{status: status, received: p.now()}
	p.mu.Unlock()
	p.version.Update(func(v uint64) uint64 { return v + 1 })
}

// Lookup returns the entry for userID. ok is false when there is no entry or
// it is older than the TTL.
func (p *Presence) Lookup(userID string) (status models.Presence, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, found := p.entries[userID]
	if !found || p.stale(entry) {
		return models.Presence{}, false
	}
	return entry.status, true
}

func (p *Presence) stale(entry presenceEntry) bool {
	return p.ttl > 0 && p.now().Sub(entry.received) > p.ttl
}

// Resolve prefers a fresh realtime entry and falls back to what the REST API
// reported for the user.
func (p *Presence) Resolve(user models.User) (online bool, lastSeen *time.Time) {
	if status, ok := p.Lookup(user.ID); ok {
		seen := status.LastSeen
		if seen.IsZero() {
			return status.IsOnline, user.LastSeen
		}
		return status.IsOnline, &seen
	}
	return user.Online, user.LastSeen
}

// Snapshot copies the fresh entries.
func (p *Presence) Snapshot() map[string]models.Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]models.Presence, len(p.entries))
	for id, entry := range p.entries {
		if !p.stale(entry) {
			out[id] = entry.status
		}
	}
	return out
}

// Subscribe delivers a change counter after every upsert or reset.
func (p *Presence) Subscribe() (<-chan uint64, func()) {
	return p.version.Subscribe()
}

func (p *Presence) Reset() {
	p.mu.Lock()
	p.entries = make(map[string]presenceEntry)
	p.mu.Unlock()
	p.version.Update(func(v uint64) uint64 { return v + 1 })
}
