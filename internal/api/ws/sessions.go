package ws

import (
	"sort"
	"sync"
)

// Sessions tracks the open channels.
type Sessions struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewSessions creates an empty session set.
func NewSessions() *Sessions {
	return &Sessions{channels: make(map[string]*Channel)}
}

func (s *Sessions) add(ch *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID()] = ch
}

func (s *Sessions) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
}

// Has reports whether a session is open.
func (s *Sessions) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[id]
	return ok
}

// List returns the open session ids, sorted.
func (s *Sessions) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// CloseAll closes every open connection. The read loops then tear the
// sessions down.
func (s *Sessions) CloseAll() {
	s.mu.RLock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.RUnlock()

	for _, ch := range channels {
		ch.close()
	}
}
