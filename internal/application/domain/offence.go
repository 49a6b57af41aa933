package domain

// UnresponsivenessOffenceKind identifies the offence towards the slashing subsystem.
var UnresponsivenessOffenceKind = [16]byte{'i', 'm', '-', 'o', 'n', 'l', 'i', 'n', 'e', ':', 'o', 'f', 'f', 'l', 'i', 'n'}

// maxSlash is the ceiling of the unresponsiveness curve: 5%.
const maxSlash = 50_000_000

// UnresponsivenessOffence lists the validators that did not heartbeat during a session.
type UnresponsivenessOffence struct {
	SessionIndex                SessionIndex
	CurrentEraStartSessionIndex SessionIndex
	ValidatorsCount             uint32
	Offenders                   []AuthorityId
}

func (o UnresponsivenessOffence) Kind() [16]byte {
	return UnresponsivenessOffenceKind
}

// TimeSlot is the session the offence was committed in.
func (o UnresponsivenessOffence) TimeSlot() SessionIndex {
	return o.SessionIndex
}

func (o UnresponsivenessOffence) SessionIndexAt() SessionIndex {
	return o.CurrentEraStartSessionIndex
}

// SlashFraction applies the unresponsiveness curve to this offence.
func (o UnresponsivenessOffence) SlashFraction() (Perbill, error) {
	return SlashFraction(uint32(len(o.Offenders)), o.ValidatorsCount)
}

// SlashFraction computes min(3(k-1)/n, 1) * 5% for k offenders out of n
// validators. Both steps truncate: the first to billionths, the second on
// the parts product.
func SlashFraction(offenders, validatorsCount uint32) (Perbill, error) {
	if offenders == 0 || validatorsCount == 0 || offenders > validatorsCount {
		return 0, ErrInvalidSlashInput
	}
	x := PerbillFromRationalApproximation(3*uint64(offenders-1), uint64(validatorsCount))
	return Perbill(uint64(x.Parts()) * maxSlash / billion), nil
}
