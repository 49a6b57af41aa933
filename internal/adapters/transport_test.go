package adapters

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	rejectAs error
	applied  []domain.Heartbeat
}

func (d *fakeDispatcher) ValidateUnsigned(domain.Heartbeat, domain.Signature) (domain.ValidTransaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.ValidTransaction{}, d.rejectAs
}

func (d *fakeDispatcher) Heartbeat(hb domain.Heartbeat, _ domain.Signature) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, hb)
	return nil
}

func (d *fakeDispatcher) reject(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectAs = err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.applied)
}

func testExtrinsic(t *testing.T, index domain.AuthorityIndex) []byte {
	t.Helper()
	ext, err := domain.UncheckedHeartbeat{
		Heartbeat: domain.Heartbeat{BlockNumber: 9, NetworkState: []byte{0}, SessionIndex: 1, AuthorityIndex: index},
		Signature: domain.Signature{0xee},
	}.Encode()
	require.NoError(t, err)
	return ext
}

func TestLocalPool_SubmitTransaction(t *testing.T) {
	d := &fakeDispatcher{}
	pool := NewLocalPool(d)

	require.NoError(t, pool.SubmitTransaction(context.Background(), testExtrinsic(t, 3)))
	require.Equal(t, 1, d.count())
	assert.Equal(t, domain.AuthorityIndex(3), d.applied[0].AuthorityIndex)

	d.reject(domain.ErrStale)
	err := pool.SubmitTransaction(context.Background(), testExtrinsic(t, 3))
	assert.ErrorIs(t, err, domain.ErrStale)
	assert.Equal(t, 1, d.count())

	assert.Error(t, pool.SubmitTransaction(context.Background(), []byte{1, 2, 3}))
}

type failingSubmitter struct{ err error }

func (f failingSubmitter) SubmitTransaction(context.Context, []byte) error { return f.err }

func TestMultiSubmitter_JoinsFailures(t *testing.T) {
	d := &fakeDispatcher{}
	boom := errors.New("boom")
	m := MultiSubmitter{failingSubmitter{boom}, NewLocalPool(d)}

	err := m.SubmitTransaction(context.Background(), testExtrinsic(t, 0))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, d.count(), "later targets still receive the extrinsic")

	assert.NoError(t, MultiSubmitter{NewLocalPool(d)}.SubmitTransaction(context.Background(), testExtrinsic(t, 0)))
}

func newTestKey(t *testing.T) ([]byte, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestQUIC_SubmitToPeer(t *testing.T) {
	_, serverKey := newTestKey(t)
	_, clientKey := newTestKey(t)
	serverCert, err := GenerateCertificate(serverKey, time.Hour)
	require.NoError(t, err)
	clientCert, err := GenerateCertificate(clientKey, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &fakeDispatcher{}
	listener := NewQUICListener("127.0.0.1:0", serverCert, NewLocalPool(d))
	require.NoError(t, listener.Start(ctx))
	defer listener.Close()

	submitter := NewQUICSubmitter(clientCert, StaticPeers{listener.Addr().String()}, 5*time.Second)

	require.NoError(t, submitter.SubmitTransaction(ctx, testExtrinsic(t, 4)))
	require.Equal(t, 1, d.count())
	assert.Equal(t, domain.AuthorityIndex(4), d.applied[0].AuthorityIndex)

	d.reject(domain.ErrBadSignature)
	err = submitter.SubmitTransaction(ctx, testExtrinsic(t, 5))
	assert.ErrorIs(t, err, ErrPeerRejected)

	d.reject(nil)
	err = submitter.SubmitTransaction(ctx, []byte("not an extrinsic"))
	assert.ErrorIs(t, err, ErrPeerRejected)
	assert.Equal(t, 1, d.count())
}

func TestQUIC_UnreachablePeer(t *testing.T) {
	_, key := newTestKey(t)
	cert, err := GenerateCertificate(key, time.Hour)
	require.NoError(t, err)

	submitter := NewQUICSubmitter(cert, StaticPeers{"127.0.0.1:1"}, 200*time.Millisecond)
	assert.Error(t, submitter.SubmitTransaction(context.Background(), testExtrinsic(t, 0)))

	// no peers is not a failure
	assert.NoError(t, NewQUICSubmitter(cert, StaticPeers{}, time.Second).SubmitTransaction(context.Background(), testExtrinsic(t, 0)))
}
