package services

import (
	"fmt"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

// HeartbeatChecker is the read side of the ledger.
type HeartbeatChecker interface {
	HasHeartbeat(session domain.SessionIndex, index domain.AuthorityIndex) (bool, error)
}

// ValidateHeartbeat decides whether an unsigned heartbeat may enter the pool.
// Checks run in a fixed order: duplicate, session, roster membership, signature.
// It never writes to the ledger.
func ValidateHeartbeat(
	ledger HeartbeatChecker,
	hb domain.Heartbeat,
	sig domain.Signature,
	current domain.SessionIndex,
	roster []domain.AuthorityId,
) (domain.ValidTransaction, error) {
	exists, err := ledger.HasHeartbeat(current, hb.AuthorityIndex)
	if err != nil {
		return domain.ValidTransaction{}, err
	}
	if exists {
		return domain.ValidTransaction{}, domain.ErrStale
	}

	if hb.SessionIndex != current {
		return domain.ValidTransaction{}, domain.ErrStale
	}

	if uint64(hb.AuthorityIndex) >= uint64(len(roster)) {
		return domain.ValidTransaction{}, domain.ErrBadSignature
	}
	id := roster[hb.AuthorityIndex]

	payload, err := hb.Encode()
	if err != nil {
		return domain.ValidTransaction{}, fmt.Errorf("encode heartbeat: %w", err)
	}
	if !domain.VerifySignature(id, payload, sig) {
		return domain.ValidTransaction{}, domain.ErrBadSignature
	}

	tag, err := domain.ProvidesTag(current, id)
	if err != nil {
		return domain.ValidTransaction{}, fmt.Errorf("encode provides tag: %w", err)
	}

	return domain.ValidTransaction{
		Priority:  0,
		Requires:  nil,
		Provides:  [][]byte{tag},
		Longevity: domain.TransactionLongevity,
		Propagate: true,
	}, nil
}
