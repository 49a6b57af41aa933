package adapters

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

type staticStatus struct {
	st  domain.ModuleStatus
	err error
}

func (s staticStatus) Status() (domain.ModuleStatus, error) { return s.st, s.err }

func TestStatusMux(t *testing.T) {
	want := domain.ModuleStatus{Session: 3, GossipAt: 150, Authorities: 4, Heartbeats: 2}
	mux := NewStatusMux(staticStatus{st: want})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got domain.ModuleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
	assert.Contains(t, rec.Body.String(), `"gossip_at":150`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "liveness_requests_total")
}

func TestStatusMux_Error(t *testing.T) {
	mux := NewStatusMux(staticStatus{err: errors.New("store closed")})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
