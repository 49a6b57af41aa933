package adapters

import (
	"bytes"
	"context"
	"sync"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

type heartbeatKey struct {
	session domain.SessionIndex
	index   domain.AuthorityIndex
}

// MemoryStore keeps module state, the heartbeat ledger and local worker
// storage in process memory. It implements ports.ModuleStore,
// ports.HeartbeatStore and ports.StatusStore.
type MemoryStore struct {
	mu sync.RWMutex

	keys       []domain.AuthorityId
	gossipAt   domain.BlockNumber
	session    domain.SessionIndex
	heartbeats map[heartbeatKey][]byte
	local      map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		heartbeats: make(map[heartbeatKey][]byte),
		local:      make(map[string][]byte),
	}
}

func (s *MemoryStore) Keys() ([]domain.AuthorityId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuthorityId(nil), s.keys...), nil
}

func (s *MemoryStore) SetKeys(keys []domain.AuthorityId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append([]domain.AuthorityId(nil), keys...)
	return nil
}

func (s *MemoryStore) GossipAt() (domain.BlockNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gossipAt, nil
}

func (s *MemoryStore) SetGossipAt(n domain.BlockNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gossipAt = n
	return nil
}

func (s *MemoryStore) SessionIndex() (domain.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, nil
}

func (s *MemoryStore) SetSessionIndex(idx domain.SessionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = idx
	return nil
}

func (s *MemoryStore) HasHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.heartbeats[heartbeatKey{session, index}]
	return ok, nil
}

func (s *MemoryStore) PutHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[heartbeatKey{session, index}] = append([]byte{}, state...)
	return nil
}

func (s *MemoryStore) ClearSession(session domain.SessionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.heartbeats {
		if k.session == session {
			delete(s.heartbeats, k)
		}
	}
	return nil
}

func (s *MemoryStore) CountHeartbeats(session domain.SessionIndex) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.heartbeats {
		if k.session == session {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.local[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, key, old, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.local[string(key)]
	switch {
	case old == nil && ok:
		return false, nil
	case old != nil && (!ok || !bytes.Equal(cur, old)):
		return false, nil
	}
	s.local[string(key)] = append([]byte{}, value...)
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[string(key)] = append([]byte{}, value...)
	return nil
}
