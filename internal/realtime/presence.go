package realtime

import (
	"sync"
	"time"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

type PresenceEntry struct {
	Status   PresenceStatus
	LastSeen time.Time
}

// PresenceTracker is the local map of user -> reported status. It feeds UI
// indicators only; nothing correctness-critical reads it and nothing persists
// it.
type PresenceTracker struct {
	mu       sync.RWMutex
	statuses map[string]PresenceEntry
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{statuses: make(map[string]PresenceEntry)}
}

func (p *PresenceTracker) Set(userID string, status PresenceStatus) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[userID] = PresenceEntry{Status: status, LastSeen: time.Now().UTC()}
}

func (p *PresenceTracker) Get(userID string) (PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.statuses[userID]
	return entry, ok
}

func (p *PresenceTracker) Snapshot() map[string]PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]PresenceEntry, len(p.statuses))
	for id, entry := range p.statuses {
		out[id] = entry
	}
	return out
}
