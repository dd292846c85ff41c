package host

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"time"
)

// CryptoRng is the default Rng: cryptographically secure randomness from
// crypto/rand, used for session IDs and the Mix Coordinator's input/output
// shuffle.
type CryptoRng struct{}

// RandomUint32 returns a uniform random value in [0, max).
func (CryptoRng) RandomUint32(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// rather than panic mid-session, fall back to four bytes read
		// straight from crypto/rand (its error ignored), taken modulo max.
		var buf [4]byte
		_, _ = rand.Read(buf[:])
		return binary.BigEndian.Uint32(buf[:]) % max
	}
	return uint32(n.Int64())
}

// Shuffle performs a cryptographically-seeded Fisher-Yates shuffle.
func (c CryptoRng) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := int(c.RandomUint32(uint32(i + 1)))
		swap(i, j)
	}
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

// NowSeconds returns the current Unix time in seconds.
func (SystemClock) NowSeconds() int64 {
	return time.Now().Unix()
}

// AdjustedTime returns the current wall-clock time. A real node adjusts this
// against peer time samples; that adjustment lives in the out-of-scope
// network layer, so the default here is unadjusted.
func (SystemClock) AdjustedTime() time.Time {
	return time.Now()
}
