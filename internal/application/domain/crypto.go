package domain

import (
	"github.com/hdevalence/ed25519consensus"
)

// VerifySignature checks sig over msg with ZIP-215 rules.
func VerifySignature(id AuthorityId, msg []byte, sig Signature) bool {
	return ed25519consensus.Verify(id[:], msg, sig[:])
}
