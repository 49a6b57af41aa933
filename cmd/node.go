package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Marketen/liveness-indexer/internal/adapters"
	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/application/services"
	"github.com/Marketen/liveness-indexer/internal/config"
	"github.com/Marketen/liveness-indexer/internal/logger"
	"github.com/Marketen/liveness-indexer/internal/telemetry"
)

const (
	certValidity = 365 * 24 * time.Hour
	peerLeaseTTL = 30
)

type nodeStore interface {
	ports.ModuleStore
	ports.HeartbeatStore
	ports.StatusStore
}

func runNode(cfg *config.Config) error {
	logger.Configure(logger.ParseLevel(cfg.LogLevel), logger.ParseFormat(cfg.LogFormat), os.Stdout)
	telemetry.SetBuildInfo(version)

	logger.Info("Starting liveness-indexer %s", version)
	logger.Info("Poll interval: %s", cfg.PollInterval)
	logger.Info("Session length: %d blocks, %d sessions per era", cfg.SessionLength, cfg.SessionsPerEra)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keystore, err := adapters.LoadKeystore(cfg.KeyFile)
	if err != nil {
		return err
	}
	nodeKey, ok := keystore.PrivateKey()
	if !ok {
		return fmt.Errorf("key file %s holds no keys", cfg.KeyFile)
	}

	roster, err := loadRoster(ctx, cfg, keystore)
	if err != nil {
		return err
	}
	logger.Info("Roster has %d authorities", len(roster))

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("Shutdown: %v", err)
			}
		}
	}()

	var store nodeStore
	if cfg.DataDir != "" {
		pebbleStore, err := adapters.NewPebbleStore(cfg.DataDir)
		if err != nil {
			return err
		}
		closers = append(closers, pebbleStore)
		store = pebbleStore
	} else {
		store = adapters.NewMemoryStore()
	}

	var (
		status ports.StatusStore   = store
		peers  adapters.PeerSource = adapters.StaticPeers(cfg.Peers)
		etcd   *adapters.EtcdStore
	)
	if cfg.StatusBackend == config.BackendEtcd {
		cli, err := adapters.NewEtcdClient(cfg.EtcdEndpoints)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		etcd = adapters.NewEtcdStore(cli, cfg.NodeID)
		closers = append(closers, etcd)
		status = etcd
		if len(cfg.Peers) == 0 {
			peers = etcd
		}
	}

	rotator, err := services.NewSessionRotator(store, roster, cfg.SessionLength, cfg.SessionsPerEra)
	if err != nil {
		return err
	}

	bus := adapters.NewEventBus()
	closers = append(closers, bus)
	if err := adapters.ConsumeHeartbeats(ctx, bus, func(id domain.AuthorityId) {
		logger.Info("💓 Heartbeat received from %s", id)
	}); err != nil {
		return err
	}

	module := services.NewModule(services.ModuleDeps{
		Store:      store,
		Heartbeats: store,
		Sessions:   rotator,
		Era:        rotator,
		Reporter:   adapters.NewOffenceLogReporter(),
		Events:     adapters.NewWatermillEvents(bus),
	})
	rotator.Attach(module)
	if installed, err := module.InitGenesis(roster); err != nil {
		return err
	} else if !installed {
		logger.Info("Resuming session %d", rotator.CurrentIndex())
	}

	cert, err := adapters.GenerateCertificate(nodeKey, certValidity)
	if err != nil {
		return err
	}
	peerID := adapters.EncodePubKeyToDNS(nodeKey.Public().(ed25519.PublicKey))
	logger.Info("Peer id: %s", peerID)

	pool := adapters.NewLocalPool(module)
	submitter := adapters.MultiSubmitter{pool}
	var addresses []string
	if cfg.ListenAddr != "" {
		listener := adapters.NewQUICListener(cfg.ListenAddr, cert, pool)
		if err := listener.Start(ctx); err != nil {
			return err
		}
		closers = append(closers, listener)
		addresses = append(addresses, listener.Addr().String())
		logger.Info("Listening for heartbeats on %s", listener.Addr())

		if etcd != nil {
			if _, err := etcd.RegisterNode(ctx, listener.Addr().String(), peerLeaseTTL); err != nil {
				logger.Warn("Could not advertise node in etcd: %v", err)
			}
		}
	}
	if len(cfg.Peers) > 0 || etcd != nil {
		submitter = append(submitter, adapters.NewQUICSubmitter(cert, peers, cfg.SubmitTimeout))
	}

	builder := services.NewHeartbeatBuilder(keystore, adapters.StaticNetworkState{PeerID: peerID, Addresses: addresses})
	worker := services.NewWorker(module, status, builder, submitter)

	clock, err := newClock(cfg, module)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: adapters.NewStatusMux(module), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runner := services.NewWorkerRunner(clock, cfg.PollInterval, rotator, worker)

	// Handle SIGINT / SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	sig := <-sigCh
	logger.Warn("Received signal %s, shutting down...", sig)
	cancel()
	<-done
	return nil
}

func loadRoster(ctx context.Context, cfg *config.Config, keystore *adapters.Ed25519Keystore) ([]domain.AuthorityId, error) {
	if cfg.RosterFile == "" {
		logger.Info("No roster file configured; the local keys form the roster")
		return keystore.PublicKeys(ctx)
	}
	return adapters.LoadRoster(cfg.RosterFile)
}

func newClock(cfg *config.Config, module *services.Module) (ports.BlockClock, error) {
	if cfg.BeaconNodeURL != "" {
		logger.Info("Beacon node URL: %s", cfg.BeaconNodeURL)
		clock, err := adapters.NewBeaconClockAdapter(cfg.BeaconNodeURL)
		if err != nil {
			return nil, fmt.Errorf("create beacon HTTP adapter: %w", err)
		}
		return clock, nil
	}

	// resume numbering from the block the current session started at
	start, err := module.GossipAt()
	if err != nil {
		return nil, err
	}
	logger.Info("Local block clock: %s per block from block %d", cfg.BlockTime, start)
	return adapters.NewLocalClock(start, cfg.BlockTime), nil
}
