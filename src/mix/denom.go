package mix

// StandardDenominations are the canonical CoinJoin output values, in
// satoshis, that a participant's outputs must match exactly. Each occupies
// one bit of a session's denom_mask, smallest value first.
var StandardDenominations = []int64{
	10001,
	100001,
	1000001,
	10000001,
	100000001,
}

// DenominationBit returns the mask bit standing for value, or ok=false if
// value is not one of StandardDenominations.
func DenominationBit(value int64) (bit int64, ok bool) {
	for i, d := range StandardDenominations {
		if d == value {
			return 1 << uint(i), true
		}
	}
	return 0, false
}

// IsValidDenomination reports whether value exactly matches a standard
// denomination.
func IsValidDenomination(value int64) bool {
	_, ok := DenominationBit(value)
	return ok
}

// allDenominationsMask is the union of every standard denomination's bit.
func allDenominationsMask() int64 {
	var mask int64
	for i := range StandardDenominations {
		mask |= 1 << uint(i)
	}
	return mask
}

// IsValidDenominationMask reports whether mask is a non-empty combination of
// one or more standard denomination bits, per spec section 3: a CJACCEPT's
// denom is a bitmask, not a single amount, and a session's denom_mask is
// built by ORing each admitted participant's mask into it.
func IsValidDenominationMask(mask int64) bool {
	return mask != 0 && mask & ^allDenominationsMask() == 0
}

// networkFeePerInput is the flat per-input contribution a participant owes
// the coordinating masternode, charged on one of its own outputs.
const networkFeePerInput int64 = 10000

func requiredFee(inputCount int) int64 {
	return networkFeePerInput * int64(inputCount)
}
