package domain

import "errors"

// InvalidTransaction is the reason an unsigned heartbeat was refused admission.
type InvalidTransaction uint8

const (
	// InvalidStale covers duplicates and heartbeats for another session.
	InvalidStale InvalidTransaction = iota + 1
	// InvalidBadSignature covers unknown authority indices and failed verification.
	InvalidBadSignature
)

func (e InvalidTransaction) Error() string {
	switch e {
	case InvalidStale:
		return "invalid transaction: stale"
	case InvalidBadSignature:
		return "invalid transaction: bad signature"
	default:
		return "invalid transaction: unknown"
	}
}

// Admission outcomes, usable with errors.Is.
var (
	ErrStale        error = InvalidStale
	ErrBadSignature error = InvalidBadSignature
)

// Off-chain worker failures. None of them is fatal to the node.
var (
	ErrDecodeWorkerStatus = errors.New("offchain: failed to decode worker status")
	ErrNoKeys             = errors.New("offchain: no local authority key in the current roster")
	ErrNetworkState       = errors.New("offchain: failed to fetch network state")
	ErrFailedSigning      = errors.New("offchain: failed to sign heartbeat")
	ErrExtrinsicCreation  = errors.New("offchain: failed to create heartbeat extrinsic")
	ErrSubmitTransaction  = errors.New("offchain: failed to submit heartbeat transaction")
)

// ErrMalformedHeartbeat is returned for heartbeat encodings rejected before decoding.
var ErrMalformedHeartbeat = errors.New("malformed heartbeat encoding")

var (
	ErrInvalidSlashInput = errors.New("slash: offenders must be in 1..=validators")
	ErrUnknownAuthority  = errors.New("authority index outside the current roster")
)
