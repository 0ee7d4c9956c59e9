// Package session tracks per-user delivered and command message ids plus the
// batch stop flag, in memory or in Redis.
package session

import (
	"context"
	"sync"

	"relaybot/pkg/relay"
)

// MemoryStore is a process-local relay.SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sent     map[int64][]int
	commands map[int64][]int
	stopped  map[int64]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sent:     make(map[int64][]int),
		commands: make(map[int64][]int),
		stopped:  make(map[int64]bool),
	}
}

// RecordSent tracks messages the bot created for userID.
func (s *MemoryStore) RecordSent(_ context.Context, userID int64, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent[userID] = append(s.sent[userID], ids...)
	return nil
}

// RecordCommand tracks command messages userID sent to the bot.
func (s *MemoryStore) RecordCommand(_ context.Context, userID int64, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands[userID] = append(s.commands[userID], ids...)
	return nil
}

// DrainForDeletion returns and forgets every tracked id of userID.
func (s *MemoryStore) DrainForDeletion(_ context.Context, userID int64) (relay.TrackedMessages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked := relay.TrackedMessages{
		Sent:     s.sent[userID],
		Commands: s.commands[userID],
	}
	delete(s.sent, userID)
	delete(s.commands, userID)

	return tracked, nil
}

// SetStopFlag sets or clears the batch stop request of userID.
func (s *MemoryStore) SetStopFlag(_ context.Context, userID int64, stop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop {
		s.stopped[userID] = true
	} else {
		delete(s.stopped, userID)
	}

	return nil
}

// CheckStopFlag reports whether userID asked to stop the running batch.
func (s *MemoryStore) CheckStopFlag(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped[userID], nil
}

var _ relay.SessionStore = (*MemoryStore)(nil)
