package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

func newTestKeys(t *testing.T, n int) ([]ed25519.PrivateKey, []domain.AuthorityId) {
	t.Helper()
	privs := make([]ed25519.PrivateKey, n)
	roster := make([]domain.AuthorityId, n)
	for i := range privs {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		privs[i] = priv
		copy(roster[i][:], pub)
	}
	return privs, roster
}

func signHeartbeat(t *testing.T, priv ed25519.PrivateKey, hb domain.Heartbeat) domain.Signature {
	t.Helper()
	payload, err := hb.Encode()
	require.NoError(t, err)
	var sig domain.Signature
	copy(sig[:], ed25519.Sign(priv, payload))
	return sig
}

type fixedSessions struct {
	mu       sync.Mutex
	index    domain.SessionIndex
	eraStart domain.SessionIndex
}

func (s *fixedSessions) CurrentIndex() domain.SessionIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *fixedSessions) set(idx domain.SessionIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
}

func (s *fixedSessions) CurrentEraStartSessionIndex() domain.SessionIndex {
	return s.eraStart
}

type recordingReporter struct {
	offences []domain.UnresponsivenessOffence
	err      error
}

func (r *recordingReporter) ReportOffence(o domain.UnresponsivenessOffence) error {
	r.offences = append(r.offences, o)
	return r.err
}

type recordingEvents struct {
	mu  sync.Mutex
	ids []domain.AuthorityId
}

func (e *recordingEvents) HeartbeatReceived(id domain.AuthorityId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return nil
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls [][]byte
	err   error
}

func (s *recordingSubmitter) SubmitTransaction(_ context.Context, ext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]byte{}, ext...))
	return s.err
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeRuntime struct {
	session  domain.SessionIndex
	keys     []domain.AuthorityId
	gossipAt domain.BlockNumber
}

func (r *fakeRuntime) CurrentSession() domain.SessionIndex { return r.session }
func (r *fakeRuntime) Keys() ([]domain.AuthorityId, error) { return r.keys, nil }
func (r *fakeRuntime) GossipAt() (domain.BlockNumber, error) { return r.gossipAt, nil }

type failingNetwork struct{}

func (failingNetwork) NetworkState(context.Context) (domain.OpaqueNetworkState, error) {
	return domain.OpaqueNetworkState{}, errors.New("network down")
}

type testModule struct {
	*Module
	store    *adapters.MemoryStore
	sessions *fixedSessions
	reporter *recordingReporter
	events   *recordingEvents
}

func newTestModule(t *testing.T, roster []domain.AuthorityId, session domain.SessionIndex) *testModule {
	t.Helper()
	store := adapters.NewMemoryStore()
	require.NoError(t, store.SetKeys(roster))

	tm := &testModule{
		store:    store,
		sessions: &fixedSessions{index: session},
		reporter: &recordingReporter{},
		events:   &recordingEvents{},
	}
	tm.Module = NewModule(ModuleDeps{
		Store:      store,
		Heartbeats: store,
		Sessions:   tm.sessions,
		Era:        tm.sessions,
		Reporter:   tm.reporter,
		Events:     tm.events,
	})
	return tm
}
