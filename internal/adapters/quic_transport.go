package adapters

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
)

const (
	heartbeatProtocol = "liveness-heartbeat/1"
	maxExtrinsicSize  = 64 << 10
	maxIdleTimeout    = 30 * time.Second
	closeGracePeriod  = 5 * time.Second

	ackAccepted byte = 0
	ackRejected byte = 1
)

var ErrPeerRejected = errors.New("peer rejected heartbeat")

func serverTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*cert},
		NextProtos:         []string{heartbeatProtocol},
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
			}
			return ValidateCertificate(cs.PeerCertificates[0])
		},
	}
}

func clientTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*cert},
		NextProtos:         []string{heartbeatProtocol},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
			}
			c, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			return ValidateCertificate(c)
		},
	}
}

// QUICListener accepts heartbeat extrinsics from peers, one per stream, and
// hands them to the local pool. The reply is a single ack byte.
type QUICListener struct {
	addr    string
	tlsConf *tls.Config
	pool    ports.TransactionSubmitter
	log     zerolog.Logger

	listener *quic.Listener
	wg       sync.WaitGroup
}

func NewQUICListener(addr string, cert *tls.Certificate, pool ports.TransactionSubmitter) *QUICListener {
	return &QUICListener{
		addr:    addr,
		tlsConf: serverTLSConfig(cert),
		pool:    pool,
		log:     logger.With("quic"),
	}
}

func (l *QUICListener) Start(ctx context.Context) error {
	listener, err := quic.ListenAddr(l.addr, l.tlsConf, &quic.Config{MaxIdleTimeout: maxIdleTimeout})
	if err != nil {
		return fmt.Errorf("quic listen %s: %w", l.addr, err)
	}
	l.listener = listener

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop(ctx)
	}()
	return nil
}

func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops accepting and waits for in-flight streams.
func (l *QUICListener) Close() error {
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.wg.Wait()
	return err
}

func (l *QUICListener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.log.Debug().Err(err).Msg("accept loop stopped")
			}
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(ctx, conn)
		}()
	}
}

func (l *QUICListener) handleConn(ctx context.Context, conn *quic.Conn) {
	defer conn.CloseWithError(0, "")

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("no stream")
		return
	}

	data, err := io.ReadAll(io.LimitReader(stream, maxExtrinsicSize+1))
	ack := ackAccepted
	switch {
	case err != nil:
		l.log.Warn().Err(err).Msg("read heartbeat extrinsic")
		ack = ackRejected
	case len(data) > maxExtrinsicSize:
		l.log.Warn().Int("size", len(data)).Msg("heartbeat extrinsic too large")
		ack = ackRejected
	default:
		if err := l.pool.SubmitTransaction(ctx, data); err != nil {
			l.log.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("heartbeat rejected")
			ack = ackRejected
		}
	}

	if _, err := stream.Write([]byte{ack}); err != nil {
		l.log.Debug().Err(err).Msg("write ack")
	}
	stream.Close()

	// the dialer closes once it has read the ack
	select {
	case <-conn.Context().Done():
	case <-time.After(closeGracePeriod):
	case <-ctx.Done():
	}
}

// PeerSource lists the heartbeat listener addresses of other nodes.
type PeerSource interface {
	Peers(ctx context.Context) ([]string, error)
}

type StaticPeers []string

func (p StaticPeers) Peers(context.Context) ([]string, error) {
	return p, nil
}

// QUICSubmitter propagates a heartbeat extrinsic to every known peer.
type QUICSubmitter struct {
	peers   PeerSource
	tlsConf *tls.Config
	timeout time.Duration
}

func NewQUICSubmitter(cert *tls.Certificate, peers PeerSource, timeout time.Duration) *QUICSubmitter {
	return &QUICSubmitter{
		peers:   peers,
		tlsConf: clientTLSConfig(cert),
		timeout: timeout,
	}
}

func (s *QUICSubmitter) SubmitTransaction(ctx context.Context, extrinsic []byte) error {
	peers, err := s.peers.Peers(ctx)
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	var errs []error
	for _, addr := range peers {
		if err := s.send(ctx, addr, extrinsic); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (s *QUICSubmitter) send(ctx context.Context, addr string, extrinsic []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, s.tlsConf, &quic.Config{MaxIdleTimeout: maxIdleTimeout})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if _, err := stream.Write(extrinsic); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}

	reply, err := io.ReadAll(io.LimitReader(stream, 2))
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if len(reply) != 1 || reply[0] != ackAccepted {
		return ErrPeerRejected
	}
	return nil
}

// MultiSubmitter submits to every target in order and joins the failures.
type MultiSubmitter []ports.TransactionSubmitter

func (m MultiSubmitter) SubmitTransaction(ctx context.Context, extrinsic []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.SubmitTransaction(ctx, extrinsic); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
