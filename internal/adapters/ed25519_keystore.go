package adapters

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

var ErrKeyNotFound = errors.New("keystore: no private key for authority")

// KeyFile is the on-disk validator key file: hex-encoded ed25519 seeds.
type KeyFile struct {
	Seeds []string `json:"seeds"`
}

// Ed25519Keystore holds this node's authority keys in memory.
type Ed25519Keystore struct {
	order []domain.AuthorityId
	keys  map[domain.AuthorityId]ed25519.PrivateKey
}

func NewEd25519Keystore(privs ...ed25519.PrivateKey) *Ed25519Keystore {
	ks := &Ed25519Keystore{keys: make(map[domain.AuthorityId]ed25519.PrivateKey, len(privs))}
	for _, priv := range privs {
		var id domain.AuthorityId
		copy(id[:], priv.Public().(ed25519.PublicKey))
		if _, ok := ks.keys[id]; ok {
			continue
		}
		ks.order = append(ks.order, id)
		ks.keys[id] = priv
	}
	return ks
}

// LoadKeystore reads a KeyFile from path.
func LoadKeystore(path string) (*Ed25519Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}

	privs := make([]ed25519.PrivateKey, 0, len(kf.Seeds))
	for i, s := range kf.Seeds {
		seed, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s: seed %d is not %d hex bytes", path, i, ed25519.SeedSize)
		}
		privs = append(privs, ed25519.NewKeyFromSeed(seed))
	}
	return NewEd25519Keystore(privs...), nil
}

// GenerateKeyFile writes a fresh single-key KeyFile to path and returns its public key.
func GenerateKeyFile(path string) (domain.AuthorityId, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.AuthorityId{}, err
	}
	raw, err := json.MarshalIndent(KeyFile{Seeds: []string{hex.EncodeToString(priv.Seed())}}, "", "  ")
	if err != nil {
		return domain.AuthorityId{}, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return domain.AuthorityId{}, fmt.Errorf("write key file: %w", err)
	}

	var id domain.AuthorityId
	copy(id[:], pub)
	return id, nil
}

func (k *Ed25519Keystore) PublicKeys(_ context.Context) ([]domain.AuthorityId, error) {
	return append([]domain.AuthorityId(nil), k.order...), nil
}

func (k *Ed25519Keystore) Sign(_ context.Context, id domain.AuthorityId, msg []byte) (domain.Signature, error) {
	priv, ok := k.keys[id]
	if !ok {
		return domain.Signature{}, fmt.Errorf("%w %s", ErrKeyNotFound, id)
	}
	var sig domain.Signature
	copy(sig[:], ed25519.Sign(priv, msg))
	return sig, nil
}

// PrivateKey returns the first key; it also identifies the node on the transport.
func (k *Ed25519Keystore) PrivateKey() (ed25519.PrivateKey, bool) {
	if len(k.order) == 0 {
		return nil, false
	}
	return k.keys[k.order[0]], true
}

// LoadRoster reads a JSON array of hex public keys.
func LoadRoster(path string) ([]domain.AuthorityId, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}
	roster := make([]domain.AuthorityId, 0, len(entries))
	for _, e := range entries {
		id, err := domain.ParseAuthorityId(e)
		if err != nil {
			return nil, err
		}
		roster = append(roster, id)
	}
	return roster, nil
}
