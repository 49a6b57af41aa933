package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/Marketen/liveness-indexer/internal/logger"
)

const etcdRoot = "/liveness"

// EtcdStore keeps the worker status in etcd so that several processes of the
// same node (restarts, hot standby) coordinate through a transactional
// compare-and-set. It also publishes this node's heartbeat listener address
// for peer discovery.
type EtcdStore struct {
	cli    *clientv3.Client
	nodeID string
}

func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      zap.NewNop(),
	})
}

func NewEtcdStore(cli *clientv3.Client, nodeID string) *EtcdStore {
	return &EtcdStore{cli: cli, nodeID: nodeID}
}

func (s *EtcdStore) localKey(key []byte) string {
	return fmt.Sprintf("%s/nodes/%s/local/%s", etcdRoot, s.nodeID, key)
}

func (s *EtcdStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	resp, err := s.cli.Get(ctx, s.localKey(key))
	if err != nil {
		return nil, fmt.Errorf("etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) CompareAndSet(ctx context.Context, key, old, value []byte) (bool, error) {
	k := s.localKey(key)

	var cmp clientv3.Cmp
	if old == nil {
		cmp = clientv3.Compare(clientv3.CreateRevision(k), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.Value(k), "=", string(old))
	}

	resp, err := s.cli.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(k, string(value))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("etcd compare-and-set: %w", err)
	}
	return resp.Succeeded, nil
}

func (s *EtcdStore) Set(ctx context.Context, key, value []byte) error {
	if _, err := s.cli.Put(ctx, s.localKey(key), string(value)); err != nil {
		return fmt.Errorf("etcd put: %w", err)
	}
	return nil
}

// RegisterNode advertises addr under this node's id for ttl seconds and keeps
// the lease alive until ctx is done.
func (s *EtcdStore) RegisterNode(ctx context.Context, addr string, ttl int64) (clientv3.LeaseID, error) {
	lease, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s/peers/%s", etcdRoot, s.nodeID)
	if _, err := s.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, err
	}

	ch, err := s.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return 0, err
	}
	go func() {
		for range ch {
		}
		logger.Debug("etcd lease %x for node %s no longer kept alive", lease.ID, s.nodeID)
	}()

	return lease.ID, nil
}

// Peers returns the advertised addresses of every other node.
func (s *EtcdStore) Peers(ctx context.Context) ([]string, error) {
	prefix := etcdRoot + "/peers/"
	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd peers: %w", err)
	}
	peers := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if strings.TrimPrefix(string(kv.Key), prefix) == s.nodeID {
			continue
		}
		peers = append(peers, string(kv.Value))
	}
	return peers, nil
}

func (s *EtcdStore) Close() error {
	return s.cli.Close()
}
