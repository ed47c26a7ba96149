// Package session persists per-session chat state between requests.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/finddoc-chatbot/internal/chat"
)

// Store loads and saves conversation state keyed by session ID.
// Load returns (nil, nil) when nothing is stored or the entry has expired.
type Store interface {
	Load(ctx context.Context, sessionID string) (*chat.State, error)
	Save(ctx context.Context, sessionID string, state *chat.State, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps state in process memory. Entries are stored encoded so
// callers never share pointers with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*chat.State, error) {
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	if ok && !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeState(entry.data)
}

func (s *MemoryStore) Save(ctx context.Context, sessionID string, state *chat.State, ttl time.Duration) error {
	if state == nil {
		return s.Delete(ctx, sessionID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Len reports the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func decodeState(data []byte) (*chat.State, error) {
	var st chat.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("session: failed to decode state: %w", err)
	}
	return &st, nil
}
