package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"
)

// Encode returns the canonical SCALE encoding of the heartbeat. This is the
// payload that gets signed.
func (h Heartbeat) Encode() ([]byte, error) {
	return scale.Marshal(h)
}

// networkStateOffset is where the network state length prefix starts: right
// after the u64 block number.
const networkStateOffset = 8

// checkNetworkStateLength rejects a heartbeat encoding whose network state
// length prefix claims more bytes than the input holds. The decoder allocates
// the declared length before reading, so this must run first on untrusted input.
func checkNetworkStateLength(data []byte) error {
	if len(data) <= networkStateOffset {
		return fmt.Errorf("%w: %d bytes", ErrMalformedHeartbeat, len(data))
	}
	length, prefix, err := readCompactLength(data[networkStateOffset:])
	if err != nil {
		return err
	}
	if length > uint64(len(data)-networkStateOffset-prefix) {
		return fmt.Errorf("%w: network state claims %d bytes, %d available",
			ErrMalformedHeartbeat, length, len(data)-networkStateOffset-prefix)
	}
	return nil
}

// readCompactLength decodes a SCALE compact integer and returns it with the
// number of bytes it occupies.
func readCompactLength(b []byte) (uint64, int, error) {
	switch b[0] & 0b11 {
	case 0b00:
		return uint64(b[0] >> 2), 1, nil
	case 0b01:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated compact length", ErrMalformedHeartbeat)
		}
		return uint64(binary.LittleEndian.Uint16(b)) >> 2, 2, nil
	case 0b10:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated compact length", ErrMalformedHeartbeat)
		}
		return uint64(binary.LittleEndian.Uint32(b)) >> 2, 4, nil
	default:
		n := int(b[0]>>2) + 4
		if n > 8 || len(b) < 1+n {
			return 0, 0, fmt.Errorf("%w: oversized compact length", ErrMalformedHeartbeat)
		}
		var buf [8]byte
		copy(buf[:], b[1:1+n])
		return binary.LittleEndian.Uint64(buf[:]), 1 + n, nil
	}
}

// DecodeHeartbeat parses a canonical heartbeat encoding.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	if err := checkNetworkStateLength(data); err != nil {
		return Heartbeat{}, err
	}
	var hb Heartbeat
	if err := scale.Unmarshal(data, &hb); err != nil {
		return Heartbeat{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return hb, nil
}

func (s WorkerStatus) Encode() ([]byte, error) {
	return scale.Marshal(s)
}

func DecodeWorkerStatus(data []byte) (WorkerStatus, error) {
	var st WorkerStatus
	if err := scale.Unmarshal(data, &st); err != nil {
		return WorkerStatus{}, fmt.Errorf("%w: %w", ErrDecodeWorkerStatus, err)
	}
	return st, nil
}

func (n OpaqueNetworkState) Encode() ([]byte, error) {
	return scale.Marshal(n)
}

func DecodeOpaqueNetworkState(data []byte) (OpaqueNetworkState, error) {
	var ns OpaqueNetworkState
	if err := scale.Unmarshal(data, &ns); err != nil {
		return OpaqueNetworkState{}, fmt.Errorf("decode network state: %w", err)
	}
	return ns, nil
}

// UncheckedHeartbeat is the unsigned extrinsic submitted to the pool: the
// heartbeat followed by its detached signature.
type UncheckedHeartbeat struct {
	Heartbeat Heartbeat
	Signature Signature
}

func (u UncheckedHeartbeat) Encode() ([]byte, error) {
	return scale.Marshal(u)
}

func DecodeUncheckedHeartbeat(data []byte) (UncheckedHeartbeat, error) {
	if err := checkNetworkStateLength(data); err != nil {
		return UncheckedHeartbeat{}, err
	}
	var u UncheckedHeartbeat
	if err := scale.Unmarshal(data, &u); err != nil {
		return UncheckedHeartbeat{}, fmt.Errorf("decode heartbeat extrinsic: %w", err)
	}
	return u, nil
}

type providesTag struct {
	Session   SessionIndex
	Authority AuthorityId
}

// ProvidesTag is the pool tag of an admitted heartbeat, SCALE((session, authority)).
// At most one transaction per tag is kept by the pool.
func ProvidesTag(session SessionIndex, id AuthorityId) ([]byte, error) {
	return scale.Marshal(providesTag{Session: session, Authority: id})
}

// EncodeRoster encodes the roster as a SCALE vector of public keys.
func EncodeRoster(keys []AuthorityId) ([]byte, error) {
	return scale.Marshal(keys)
}

func DecodeRoster(data []byte) ([]AuthorityId, error) {
	var keys []AuthorityId
	if err := scale.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return keys, nil
}

func EncodeBlockNumber(n BlockNumber) ([]byte, error) {
	return scale.Marshal(n)
}

func DecodeBlockNumber(data []byte) (BlockNumber, error) {
	var n BlockNumber
	if err := scale.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("decode block number: %w", err)
	}
	return n, nil
}

func EncodeSessionIndex(s SessionIndex) ([]byte, error) {
	return scale.Marshal(s)
}

func DecodeSessionIndex(data []byte) (SessionIndex, error) {
	var s SessionIndex
	if err := scale.Unmarshal(data, &s); err != nil {
		return 0, fmt.Errorf("decode session index: %w", err)
	}
	return s, nil
}
