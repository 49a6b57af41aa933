package domain

import "fmt"

const billion = 1_000_000_000

// Perbill is a fraction in parts per billion, in [0, 1_000_000_000].
type Perbill uint32

// PerbillFromParts saturates at one.
func PerbillFromParts(parts uint32) Perbill {
	if parts > billion {
		parts = billion
	}
	return Perbill(parts)
}

// PerbillFromRationalApproximation returns p/q truncated to billionths.
// p >= q saturates to one; q == 0 yields zero.
func PerbillFromRationalApproximation(p, q uint64) Perbill {
	if q == 0 {
		return 0
	}
	if p >= q {
		return billion
	}
	// p < q, and q fits a u32 for every caller, so p*billion stays below 2^63.
	if q > 1<<32 {
		shift := q >> 32
		p, q = p/shift, q/shift
	}
	return Perbill(p * billion / q)
}

func (p Perbill) Parts() uint32 {
	return uint32(p)
}

func (p Perbill) String() string {
	return fmt.Sprintf("%d.%09d", uint32(p)/billion, uint32(p)%billion)
}
