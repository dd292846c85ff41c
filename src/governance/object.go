// Package governance implements the Governance Store of spec section 4.2:
// the in-memory indexed store of governance objects and votes, with
// postponed/orphan buffers and quorum-derived sentinel flags.
package governance

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/crypto/keys"
)

// ObjectType distinguishes proposals from triggers, a sum type per the
// design notes rather than an inheritance hierarchy.
type ObjectType int

const (
	// Unknown marks an object whose type could not be determined.
	Unknown ObjectType = iota
	// Proposal is a funding request with a permanent tombstone on deletion.
	Proposal
	// Trigger schedules a payment superblock and is subject to the rate
	// limiter.
	Trigger
)

func (t ObjectType) String() string {
	switch t {
	case Proposal:
		return "Proposal"
	case Trigger:
		return "Trigger"
	default:
		return "Unknown"
	}
}

// Flags are the cached sentinel booleans recomputed periodically from vote
// tallies, per spec section 4.2's "Sentinel variable computation".
type Flags struct {
	Funding    bool
	Valid      bool
	Delete     bool
	Endorsed   bool
	Dirty      bool
	Expired    bool
	Unparsable bool
}

// Object is the immutable-on-receipt governance record of spec section 3.
type Object struct {
	mu sync.Mutex // cs_object: guards Votes independently of the store lock

	Hash               chainhash.Hash
	ParentHash         chainhash.Hash
	Revision           int32
	CreatedTime        int64
	CollateralTxid     chainhash.Hash
	DataBlob           []byte
	Type               ObjectType
	MasternodeOutpoint *wire.OutPoint
	SigR, SigS         *big.Int
	DeletionTime       int64

	Flags Flags

	// Votes indexes every vote accepted against this object by its own
	// hash, so vote_to_object's invariant ("o.votes.contains(h)") holds by
	// construction.
	Votes map[chainhash.Hash]*Vote
}

// NewObject constructs an Object and computes its Hash.
func NewObject(parentHash chainhash.Hash, revision int32, createdTime int64, collateralTxid chainhash.Hash, data []byte, objType ObjectType, mnOutpoint *wire.OutPoint) *Object {
	o := &Object{
		ParentHash:     parentHash,
		Revision:       revision,
		CreatedTime:    createdTime,
		CollateralTxid: collateralTxid,
		DataBlob:       data,
		Type:           objType,
		Votes:          make(map[chainhash.Hash]*Vote),
	}
	if mnOutpoint != nil {
		op := *mnOutpoint
		o.MasternodeOutpoint = &op
	}
	o.Hash = o.ComputeHash()
	return o
}

// hashPreimage builds the domain-separated signing/hashing preimage of spec
// section 3: "(parent_hash, revision, created_time, data_hex, masternode_outpoint, signature)".
func (o *Object) hashPreimage(includeSignature bool) []byte {
	outpointStr := ""
	if o.MasternodeOutpoint != nil {
		outpointStr = o.MasternodeOutpoint.String()
	}
	sigStr := ""
	if includeSignature && o.SigR != nil && o.SigS != nil {
		sigStr = keys.EncodeSignature(o.SigR, o.SigS)
	}
	msg := fmt.Sprintf("%s|%d|%d|%s|%s|%s",
		o.ParentHash.String(),
		o.Revision,
		o.CreatedTime,
		hex.EncodeToString(o.DataBlob),
		outpointStr,
		sigStr,
	)
	return []byte(msg)
}

// ComputeHash recomputes the object's hash. It is stable across repeated
// calls and independent of cached Flags, per spec section 8's round-trip
// law.
func (o *Object) ComputeHash() chainhash.Hash {
	return chainhash.HashH(o.hashPreimage(true))
}

// signingMessage is the digest signed by the masternode that authored the
// object; it excludes the signature itself.
func (o *Object) signingMessage() []byte {
	return chainhash.HashB(o.hashPreimage(false))
}

// Sign signs the object with the authoring masternode's private key and
// recomputes Hash to include the new signature.
func (o *Object) Sign(priv *btcec.PrivateKey) error {
	r, s, err := keys.Sign(priv.ToECDSA(), o.signingMessage())
	if err != nil {
		return err
	}
	o.SigR, o.SigS = r, s
	o.Hash = o.ComputeHash()
	return nil
}

// Verify checks the object's signature against pub, the public key resolved
// for MasternodeOutpoint.
func (o *Object) Verify(pub *btcec.PublicKey) bool {
	if o.SigR == nil || o.SigS == nil {
		return false
	}
	return keys.Verify(pub.ToECDSA(), o.signingMessage(), o.SigR, o.SigS)
}

// AddVote records v against the object under cs_object, satisfying the
// invariant that vote_to_object[h] implies o.Votes.contains(h).
func (o *Object) AddVote(v *Vote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Votes[v.Hash] = v
}

// RemoveVote deletes v's hash from the object's vote index, used when
// evicting a masternode's votes during cache cleanup.
func (o *Object) RemoveVote(hash chainhash.Hash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.Votes, hash)
}

// HasVote reports whether hash is indexed against this object.
func (o *Object) HasVote(hash chainhash.Hash) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.Votes[hash]
	return ok
}

// VoteHashes returns a snapshot of every vote hash indexed against this
// object, for gossip sync to advertise without touching Votes directly.
func (o *Object) VoteHashes() []chainhash.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()
	hashes := make([]chainhash.Hash, 0, len(o.Votes))
	for h := range o.Votes {
		hashes = append(hashes, h)
	}
	return hashes
}

// VotesBySignal returns yes/no/abstain counts for signal, used by sentinel
// flag computation.
func (o *Object) VotesBySignal(signal Signal) (yes, no, abstain int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, v := range o.Votes {
		if v.Signal != signal {
			continue
		}
		switch v.Outcome {
		case Yes:
			yes++
		case No:
			no++
		case Abstain:
			abstain++
		}
	}
	return
}

// ClearVotesFromMasternode removes every vote cast by outpoint, used when
// the host signals that masternode has been removed.
func (o *Object) ClearVotesFromMasternode(outpoint wire.OutPoint) (removed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for h, v := range o.Votes {
		if v.MasternodeOutpoint == outpoint {
			delete(o.Votes, h)
			removed = true
		}
	}
	return removed
}
