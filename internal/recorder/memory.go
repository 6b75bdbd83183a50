package recorder

import (
	"context"
	"sync"

	"github.com/kapu/chess-arena/internal/domain"
)

// memStore is an in-memory Store used in tests and when no database is
// configured.
type memStore struct {
	mu sync.RWMutex

	byMatch  map[string]*domain.MatchRecord // sessionID|playerID
	byPlayer map[string][]*domain.MatchRecord
	profiles map[string]*domain.PlayerProfile
}

func NewMemoryStore() Store {
	return &memStore{
		byMatch:  make(map[string]*domain.MatchRecord),
		byPlayer: make(map[string][]*domain.MatchRecord),
		profiles: make(map[string]*domain.PlayerProfile),
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) InsertMatch(ctx context.Context, rec *domain.MatchRecord) (bool, error) {
	if rec == nil {
		return false, nil
	}
	key := rec.SessionID + "|" + rec.PlayerID

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byMatch[key]; exists {
		return false, nil
	}
	cp := *rec
	m.byMatch[key] = &cp
	m.byPlayer[rec.PlayerID] = append(m.byPlayer[rec.PlayerID], &cp)
	return true, nil
}

func (m *memStore) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[playerID]; ok && p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error {
	if profile == nil {
		return nil
	}
	cp := *profile
	m.mu.Lock()
	m.profiles[profile.PlayerID] = &cp
	m.mu.Unlock()
	return nil
}

// MatchesFor returns the recorded matches for a player, oldest first.
func (m *memStore) MatchesFor(playerID string) []*domain.MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MatchRecord, 0, len(m.byPlayer[playerID]))
	for _, rec := range m.byPlayer[playerID] {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}
