package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

func newRotatedModule(t *testing.T, store *adapters.MemoryStore, roster []domain.AuthorityId) (*SessionRotator, *Module, *recordingReporter) {
	t.Helper()
	rotator, err := NewSessionRotator(store, roster, 10, 3)
	require.NoError(t, err)

	reporter := &recordingReporter{}
	module := NewModule(ModuleDeps{
		Store:      store,
		Heartbeats: store,
		Sessions:   rotator,
		Era:        rotator,
		Reporter:   reporter,
		Events:     &recordingEvents{},
	})
	rotator.Attach(module)
	_, err = module.InitGenesis(roster)
	require.NoError(t, err)
	return rotator, module, reporter
}

func TestSessionRotator_OnBlock(t *testing.T) {
	_, roster := newTestKeys(t, 3)
	store := adapters.NewMemoryStore()
	rotator, module, reporter := newRotatedModule(t, store, roster)

	rotated, err := rotator.OnBlock(9)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Empty(t, reporter.offences)

	rotated, err = rotator.OnBlock(10)
	require.NoError(t, err)
	assert.True(t, rotated)

	require.Len(t, reporter.offences, 1)
	offence := reporter.offences[0]
	assert.Equal(t, domain.SessionIndex(0), offence.SessionIndex)
	assert.Equal(t, domain.SessionIndex(0), offence.CurrentEraStartSessionIndex)
	assert.Equal(t, uint32(3), offence.ValidatorsCount)
	assert.Equal(t, roster, offence.Offenders)

	assert.Equal(t, domain.SessionIndex(1), rotator.CurrentIndex())
	gossipAt, err := module.GossipAt()
	require.NoError(t, err)
	assert.Equal(t, domain.BlockNumber(10), gossipAt)
	persisted, err := store.SessionIndex()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionIndex(1), persisted)

	// the next session is measured from the block it started at
	rotated, err = rotator.OnBlock(19)
	require.NoError(t, err)
	assert.False(t, rotated)
}

func TestSessionRotator_EraStart(t *testing.T) {
	_, roster := newTestKeys(t, 2)
	rotator, _, reporter := newRotatedModule(t, adapters.NewMemoryStore(), roster)

	want := []domain.SessionIndex{0, 0, 0, 3, 3}
	for i, block := range []domain.BlockNumber{10, 20, 30, 40, 50} {
		assert.Equal(t, want[i], rotator.CurrentEraStartSessionIndex(), "session %d", rotator.CurrentIndex())
		_, err := rotator.OnBlock(block)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.SessionIndex(5), rotator.CurrentIndex())
	assert.Equal(t, domain.SessionIndex(3), rotator.CurrentEraStartSessionIndex())
	require.Len(t, reporter.offences, 5)
	assert.Equal(t, domain.SessionIndex(3), reporter.offences[4].CurrentEraStartSessionIndex)
}

func TestSessionRotator_ResumesPersistedSession(t *testing.T) {
	_, roster := newTestKeys(t, 2)
	store := adapters.NewMemoryStore()
	rotator, _, _ := newRotatedModule(t, store, roster)
	for _, block := range []domain.BlockNumber{10, 20} {
		_, err := rotator.OnBlock(block)
		require.NoError(t, err)
	}

	restarted, module, _ := newRotatedModule(t, store, roster)
	assert.Equal(t, domain.SessionIndex(2), restarted.CurrentIndex())

	installed, err := module.InitGenesis(roster)
	require.NoError(t, err)
	assert.False(t, installed)

	rotated, err := restarted.OnBlock(29)
	require.NoError(t, err)
	assert.False(t, rotated)
}

func TestSessionRotator_Errors(t *testing.T) {
	store := adapters.NewMemoryStore()

	_, err := NewSessionRotator(store, nil, 0, 6)
	assert.Error(t, err)
	_, err = NewSessionRotator(store, nil, 10, 0)
	assert.Error(t, err)

	rotator, err := NewSessionRotator(store, nil, 10, 6)
	require.NoError(t, err)
	_, err = rotator.OnBlock(100)
	assert.ErrorIs(t, err, errNoSessionHandler)
}

type failingSessionHandler struct {
	gossipAt domain.BlockNumber
	err      error
	ended    int
	started  []domain.SessionIndex
	sessions *SessionRotator
}

func (h *failingSessionHandler) GossipAt() (domain.BlockNumber, error) { return h.gossipAt, nil }

func (h *failingSessionHandler) OnBeforeSessionEnding() error {
	h.ended++
	return nil
}

func (h *failingSessionHandler) OnNewSession(domain.BlockNumber, []domain.AuthorityId) error {
	h.started = append(h.started, h.sessions.CurrentIndex())
	return h.err
}

func TestSessionRotator_FailedStartKeepsSession(t *testing.T) {
	store := adapters.NewMemoryStore()
	require.NoError(t, store.SetSessionIndex(4))
	rotator, err := NewSessionRotator(store, nil, 10, 6)
	require.NoError(t, err)

	handler := &failingSessionHandler{err: errors.New("ledger unavailable"), sessions: rotator}
	rotator.Attach(handler)

	rotated, err := rotator.OnBlock(10)
	require.Error(t, err)
	assert.False(t, rotated)
	assert.Equal(t, []domain.SessionIndex{5}, handler.started, "handler sees the new index")
	assert.Equal(t, domain.SessionIndex(4), rotator.CurrentIndex())
	persisted, err := store.SessionIndex()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionIndex(4), persisted)

	handler.err = nil
	rotated, err = rotator.OnBlock(10)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, domain.SessionIndex(5), rotator.CurrentIndex())
	assert.Equal(t, 1, handler.ended, "ended session is reported once")
	persisted, err = store.SessionIndex()
	require.NoError(t, err)
	assert.Equal(t, domain.SessionIndex(5), persisted)
}
