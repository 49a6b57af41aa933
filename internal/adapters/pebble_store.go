package adapters

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"golang.org/x/crypto/blake2b"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

var ErrStoreClosed = errors.New("pebble-store: database is closed")

const (
	prefixHeartbeat byte = iota + 1
	prefixKeys
	prefixGossipAt
	prefixSessionIndex
	prefixLocal
)

// PebbleStore persists module state, the heartbeat ledger and local worker
// storage in a pebble database. Heartbeats live under
// prefix | session (big endian) | blake2b-256(SCALE(authority index)), so a
// session is a contiguous key range.
type PebbleStore struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex

	// casMu serializes read-compare-write on local storage. pebble holds an
	// exclusive lock on its directory, so this process is the only writer.
	casMu sync.Mutex
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store %q: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func sessionPrefix(session domain.SessionIndex) []byte {
	k := make([]byte, 5)
	k[0] = prefixHeartbeat
	binary.BigEndian.PutUint32(k[1:], uint32(session))
	return k
}

func heartbeatKeyBytes(session domain.SessionIndex, index domain.AuthorityIndex) []byte {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(index)) // SCALE u32
	h := blake2b.Sum256(idx[:])
	return append(sessionPrefix(session), h[:]...)
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *PebbleStore) get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrStoreClosed
	}

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *PebbleStore) put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleStore) Keys() ([]domain.AuthorityId, error) {
	raw, err := p.get([]byte{prefixKeys})
	if err != nil || raw == nil {
		return nil, err
	}
	return domain.DecodeRoster(raw)
}

func (p *PebbleStore) SetKeys(keys []domain.AuthorityId) error {
	raw, err := domain.EncodeRoster(keys)
	if err != nil {
		return err
	}
	return p.put([]byte{prefixKeys}, raw)
}

func (p *PebbleStore) GossipAt() (domain.BlockNumber, error) {
	raw, err := p.get([]byte{prefixGossipAt})
	if err != nil || raw == nil {
		return 0, err
	}
	return domain.DecodeBlockNumber(raw)
}

func (p *PebbleStore) SetGossipAt(n domain.BlockNumber) error {
	raw, err := domain.EncodeBlockNumber(n)
	if err != nil {
		return err
	}
	return p.put([]byte{prefixGossipAt}, raw)
}

func (p *PebbleStore) SessionIndex() (domain.SessionIndex, error) {
	raw, err := p.get([]byte{prefixSessionIndex})
	if err != nil || raw == nil {
		return 0, err
	}
	return domain.DecodeSessionIndex(raw)
}

func (p *PebbleStore) SetSessionIndex(s domain.SessionIndex) error {
	raw, err := domain.EncodeSessionIndex(s)
	if err != nil {
		return err
	}
	return p.put([]byte{prefixSessionIndex}, raw)
}

func (p *PebbleStore) HasHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex) (bool, error) {
	v, err := p.get(heartbeatKeyBytes(session, index))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (p *PebbleStore) PutHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex, state []byte) error {
	if state == nil {
		state = []byte{}
	}
	return p.put(heartbeatKeyBytes(session, index), state)
}

// ClearSession drops the whole session with a single range tombstone.
func (p *PebbleStore) ClearSession(session domain.SessionIndex) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}
	start := sessionPrefix(session)
	return p.db.DeleteRange(start, prefixEnd(start), pebble.Sync)
}

func (p *PebbleStore) CountHeartbeats(session domain.SessionIndex) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrStoreClosed
	}
	start := sessionPrefix(session)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: prefixEnd(start),
	})
	if err != nil {
		return 0, fmt.Errorf("pebble-store: create iterator: %w", err)
	}
	defer iter.Close()

	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	return n, iter.Error()
}

func localKey(key []byte) []byte {
	return append([]byte{prefixLocal}, key...)
}

func (p *PebbleStore) Get(_ context.Context, key []byte) ([]byte, error) {
	return p.get(localKey(key))
}

func (p *PebbleStore) CompareAndSet(_ context.Context, key, old, value []byte) (bool, error) {
	p.casMu.Lock()
	defer p.casMu.Unlock()

	cur, err := p.get(localKey(key))
	if err != nil {
		return false, err
	}
	if (old == nil) != (cur == nil) || !bytes.Equal(cur, old) {
		return false, nil
	}
	if err := p.put(localKey(key), value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) Set(_ context.Context, key, value []byte) error {
	p.casMu.Lock()
	defer p.casMu.Unlock()
	return p.put(localKey(key), value)
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
