package governance

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/crypto/keys"
)

// Signal names what a vote is expressing an opinion about.
type Signal int

const (
	Funding Signal = iota
	ValidSignal
	Delete
	Endorsed
)

func (s Signal) String() string {
	switch s {
	case Funding:
		return "Funding"
	case ValidSignal:
		return "Valid"
	case Delete:
		return "Delete"
	case Endorsed:
		return "Endorsed"
	default:
		return "Unknown"
	}
}

// Outcome is how a masternode voted.
type Outcome int

const (
	Yes Outcome = iota
	No
	Abstain
)

func (o Outcome) String() string {
	switch o {
	case Yes:
		return "Yes"
	case No:
		return "No"
	case Abstain:
		return "Abstain"
	default:
		return "Unknown"
	}
}

// Vote is a masternode's signed opinion about a governance object, per spec
// section 3.
type Vote struct {
	Hash               chainhash.Hash
	MasternodeOutpoint wire.OutPoint
	ParentObjectHash   chainhash.Hash
	Signal             Signal
	Outcome            Outcome
	Timestamp          int64
	SigR, SigS         *big.Int
}

// NewVote constructs a Vote and computes its Hash.
func NewVote(mnOutpoint wire.OutPoint, parentHash chainhash.Hash, signal Signal, outcome Outcome, timestamp int64) *Vote {
	v := &Vote{
		MasternodeOutpoint: mnOutpoint,
		ParentObjectHash:   parentHash,
		Signal:             signal,
		Outcome:            outcome,
		Timestamp:          timestamp,
	}
	v.Hash = v.ComputeHash()
	return v
}

func (v *Vote) hashPreimage(includeSignature bool) []byte {
	sigStr := ""
	if includeSignature && v.SigR != nil && v.SigS != nil {
		sigStr = keys.EncodeSignature(v.SigR, v.SigS)
	}
	msg := fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		v.MasternodeOutpoint.String(),
		v.ParentObjectHash.String(),
		v.Signal,
		v.Outcome,
		v.Timestamp,
		sigStr,
	)
	return []byte(msg)
}

// ComputeHash recomputes the vote's own identifying hash.
func (v *Vote) ComputeHash() chainhash.Hash {
	return chainhash.HashH(v.hashPreimage(true))
}

func (v *Vote) signingMessage() []byte {
	return chainhash.HashB(v.hashPreimage(false))
}

// Sign signs the vote with the voting masternode's private key.
func (v *Vote) Sign(priv *btcec.PrivateKey) error {
	r, s, err := keys.Sign(priv.ToECDSA(), v.signingMessage())
	if err != nil {
		return err
	}
	v.SigR, v.SigS = r, s
	v.Hash = v.ComputeHash()
	return nil
}

// Verify checks the vote's signature against pub.
func (v *Vote) Verify(pub *btcec.PublicKey) bool {
	if v.SigR == nil || v.SigS == nil {
		return false
	}
	return keys.Verify(pub.ToECDSA(), v.signingMessage(), v.SigR, v.SigS)
}
