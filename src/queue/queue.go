// Package queue implements the Queue Broadcast component of spec section
// 4.5: signed advertisements that a masternode is open to mixing a
// particular denomination, along with their relay and eviction rules.
package queue

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/crypto/keys"
)

// Status is the lifecycle stage of a Queue advertisement.
type Status int

const (
	// Open means the masternode is soliciting participants.
	Open Status = iota
	// Ready means enough participants have joined to finalize soon.
	Ready
	// Full means the session has reached MaxPoolInputs.
	Full
	// Closed means the session has ended; the queue is a withdrawal notice.
	Closed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "Open"
	case Ready:
		return "Ready"
	case Full:
		return "Full"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Queue is a signed advertisement that a masternode is open to mixing Denom,
// per spec section 3's "Queue advertisement".
type Queue struct {
	Denom     int64
	Outpoint  wire.OutPoint
	Height    int32
	Status    Status
	SigR, SigS *big.Int
}

// signingMessage returns the domain-separated digest signed over a Queue,
// following the "domain-separated message string" convention of spec
// section 6.
func (q *Queue) signingMessage() []byte {
	msg := fmt.Sprintf("CJQUEUE|%d|%s|%d|%d", q.Denom, q.Outpoint.String(), q.Height, q.Status)
	return chainhash.HashB([]byte(msg))
}

// Sign signs the queue with the masternode's private key.
func (q *Queue) Sign(priv *btcec.PrivateKey) error {
	r, s, err := keys.Sign(priv.ToECDSA(), q.signingMessage())
	if err != nil {
		return err
	}
	q.SigR, q.SigS = r, s
	return nil
}

// Verify checks the queue's signature against pub, the public key resolved
// for q.Outpoint by the masternode registry.
func (q *Queue) Verify(pub *btcec.PublicKey) bool {
	if q.SigR == nil || q.SigS == nil {
		return false
	}
	return keys.Verify(pub.ToECDSA(), q.signingMessage(), q.SigR, q.SigS)
}

// Expired reports whether the queue's Height + ttlBlocks has fallen behind
// currentHeight, per spec section 3.
func (q *Queue) Expired(currentHeight int32, ttlBlocks int32) bool {
	return q.Height+ttlBlocks < currentHeight
}

// TooFarInFuture rejects a queue advertised more than one block ahead of the
// receiver's view of the chain, per spec section 4.1's handle_queue.
func (q *Queue) TooFarInFuture(currentHeight int32) bool {
	return q.Height > currentHeight+1
}

// Clone returns a deep-enough copy safe to mutate independently (status
// updates create a new Queue rather than mutating the original in place).
func (q *Queue) Clone() *Queue {
	clone := *q
	return &clone
}
