package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

func admitAndApply(t *testing.T, m *testModule, hb domain.Heartbeat, sig domain.Signature) {
	t.Helper()
	_, err := m.ValidateUnsigned(hb, sig)
	require.NoError(t, err)
	require.NoError(t, m.Heartbeat(hb, sig))
}

func TestModule_SessionEndToEnd(t *testing.T) {
	privs, roster := newTestKeys(t, 3)
	m := newTestModule(t, roster, 1)
	m.sessions.eraStart = 0

	for _, idx := range []domain.AuthorityIndex{1, 2} {
		hb := domain.Heartbeat{BlockNumber: 7, SessionIndex: 1, AuthorityIndex: idx}
		admitAndApply(t, m, hb, signHeartbeat(t, privs[idx], hb))
	}

	for idx, want := range []bool{false, true, true} {
		ok, err := m.IsOnlineInCurrentSession(domain.AuthorityIndex(idx))
		require.NoError(t, err)
		assert.Equal(t, want, ok, "authority %d", idx)
	}
	assert.Equal(t, []domain.AuthorityId{roster[1], roster[2]}, m.events.ids)

	require.NoError(t, m.OnBeforeSessionEnding())
	require.Len(t, m.reporter.offences, 1)
	assert.Equal(t, domain.UnresponsivenessOffence{
		SessionIndex:                1,
		CurrentEraStartSessionIndex: 0,
		ValidatorsCount:             3,
		Offenders:                   []domain.AuthorityId{roster[0]},
	}, m.reporter.offences[0])

	frac, err := m.reporter.offences[0].SlashFraction()
	require.NoError(t, err)
	assert.Equal(t, domain.Perbill(0), frac)

	// rotation: the session index moves first, then the new session starts
	m.sessions.set(2)
	require.NoError(t, m.OnNewSession(30, roster))

	count, err := m.store.CountHeartbeats(1)
	require.NoError(t, err)
	assert.Zero(t, count, "ended session is cleared")

	gossipAt, err := m.GossipAt()
	require.NoError(t, err)
	assert.Equal(t, domain.BlockNumber(30), gossipAt)

	// a heartbeat signed for the old session is now stale
	old := domain.Heartbeat{BlockNumber: 8, SessionIndex: 1, AuthorityIndex: 0}
	_, err = m.ValidateUnsigned(old, signHeartbeat(t, privs[0], old))
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestModule_ReportsEmptyOffence(t *testing.T) {
	privs, roster := newTestKeys(t, 2)
	m := newTestModule(t, roster, 0)

	for i := range roster {
		hb := domain.Heartbeat{BlockNumber: 1, SessionIndex: 0, AuthorityIndex: domain.AuthorityIndex(i)}
		admitAndApply(t, m, hb, signHeartbeat(t, privs[i], hb))
	}

	require.NoError(t, m.OnBeforeSessionEnding())
	require.Len(t, m.reporter.offences, 1)
	assert.Empty(t, m.reporter.offences[0].Offenders)
	assert.Equal(t, uint32(2), m.reporter.offences[0].ValidatorsCount)
}

func TestModule_HeartbeatDispatch(t *testing.T) {
	privs, roster := newTestKeys(t, 2)
	m := newTestModule(t, roster, 0)

	hb := domain.Heartbeat{BlockNumber: 1, SessionIndex: 0, AuthorityIndex: 0}
	sig := signHeartbeat(t, privs[0], hb)
	require.NoError(t, m.Heartbeat(hb, sig))
	require.NoError(t, m.Heartbeat(hb, sig), "second dispatch is ignored")
	assert.Len(t, m.events.ids, 1)

	_, err := m.ValidateUnsigned(hb, sig)
	assert.ErrorIs(t, err, domain.ErrStale)

	unknown := domain.Heartbeat{BlockNumber: 1, SessionIndex: 0, AuthorityIndex: 5}
	require.NoError(t, m.Heartbeat(unknown, sig), "index outside the roster is ignored")
	count, err := m.store.CountHeartbeats(0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, m.events.ids, 1)
}

func TestModule_HeartbeatAdmittedBeforeRotation(t *testing.T) {
	privs, roster := newTestKeys(t, 2)
	m := newTestModule(t, roster, 4)

	hb := domain.Heartbeat{BlockNumber: 40, SessionIndex: 4, AuthorityIndex: 0}
	sig := signHeartbeat(t, privs[0], hb)
	_, err := m.ValidateUnsigned(hb, sig)
	require.NoError(t, err)

	// the session rotates between admission and apply
	m.sessions.set(5)
	require.NoError(t, m.Heartbeat(hb, sig))

	ok, err := m.IsOnlineInCurrentSession(0)
	require.NoError(t, err)
	assert.False(t, ok, "a session 4 heartbeat must not count for session 5")
	for _, session := range []domain.SessionIndex{4, 5} {
		count, err := m.store.CountHeartbeats(session)
		require.NoError(t, err)
		assert.Zero(t, count, "session %d", session)
	}
	assert.Empty(t, m.events.ids)

	_, err = m.ValidateUnsigned(hb, sig)
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestModule_InitGenesisAndStatus(t *testing.T) {
	_, roster := newTestKeys(t, 4)
	m := newTestModule(t, nil, 0)

	installed, err := m.InitGenesis(roster)
	require.NoError(t, err)
	assert.True(t, installed)

	installed, err = m.InitGenesis(roster[:1])
	require.NoError(t, err)
	assert.False(t, installed, "an existing roster is kept")

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, roster, keys)

	require.NoError(t, m.store.PutHeartbeat(0, 3, nil))
	st, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.ModuleStatus{Session: 0, GossipAt: 0, Authorities: 4, Heartbeats: 1}, st)
}
