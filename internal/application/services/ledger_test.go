package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

func TestHeartbeatLedger(t *testing.T) {
	_, roster := newTestKeys(t, 3)

	tests := []struct {
		name string
		fn   func(t *testing.T, ledger *HeartbeatLedger, events *recordingEvents)
	}{
		{
			name: "record_then_has",
			fn: func(t *testing.T, ledger *HeartbeatLedger, events *recordingEvents) {
				ok, err := ledger.HasHeartbeat(4, 1)
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, ledger.Record(4, 1, []byte("state")))

				ok, err = ledger.HasHeartbeat(4, 1)
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = ledger.HasHeartbeat(5, 1)
				require.NoError(t, err)
				assert.False(t, ok, "entries are per session")

				assert.Equal(t, []domain.AuthorityId{roster[1]}, events.ids)
			},
		},
		{
			name: "duplicate_record_is_noop",
			fn: func(t *testing.T, ledger *HeartbeatLedger, events *recordingEvents) {
				require.NoError(t, ledger.Record(4, 2, []byte("first")))
				require.NoError(t, ledger.Record(4, 2, []byte("second")))

				count, err := ledger.Count(4)
				require.NoError(t, err)
				assert.Equal(t, 1, count)
				assert.Len(t, events.ids, 1, "HeartbeatReceived is announced once")
			},
		},
		{
			name: "unknown_authority",
			fn: func(t *testing.T, ledger *HeartbeatLedger, events *recordingEvents) {
				err := ledger.Record(4, 3, nil)
				assert.ErrorIs(t, err, domain.ErrUnknownAuthority)
				assert.Empty(t, events.ids)
			},
		},
		{
			name: "clear_session",
			fn: func(t *testing.T, ledger *HeartbeatLedger, _ *recordingEvents) {
				require.NoError(t, ledger.Record(4, 0, nil))
				require.NoError(t, ledger.Record(4, 2, nil))
				require.NoError(t, ledger.Record(5, 0, nil))

				require.NoError(t, ledger.ClearSession(4))

				for _, idx := range []domain.AuthorityIndex{0, 2} {
					ok, err := ledger.HasHeartbeat(4, idx)
					require.NoError(t, err)
					assert.False(t, ok)
				}
				ok, err := ledger.HasHeartbeat(5, 0)
				require.NoError(t, err)
				assert.True(t, ok, "other sessions survive")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := adapters.NewMemoryStore()
			require.NoError(t, store.SetKeys(roster))
			events := &recordingEvents{}
			tc.fn(t, NewHeartbeatLedger(store, store, events), events)
		})
	}
}
