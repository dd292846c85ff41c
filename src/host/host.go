// Package host declares the interfaces the mixing and governance engines
// consume from the surrounding node. Nothing in this package talks to a
// socket, a database, or the chain directly; host is the seam between the
// engines covered by this repository and the out-of-scope collaborators
// named in spec section 6 (the wire dispatcher, the block-index, the wallet).
package host

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MasternodeInfo is what the registry knows about a masternode identified by
// its staked outpoint.
type MasternodeInfo struct {
	Address   string
	PubKey    []byte
	ProtoVer  int
	IsInbound bool
}

// MasternodeRegistry resolves masternode identities and records votes against
// them. It is the host's authoritative list of currently-staked outpoints.
type MasternodeRegistry interface {
	// Lookup returns the masternode named by outpoint, or ok=false if unknown.
	Lookup(outpoint wire.OutPoint) (info MasternodeInfo, ok bool)

	// Has reports whether outpoint currently names an active masternode.
	Has(outpoint wire.OutPoint) bool

	// ActiveCount returns the number of currently active masternodes, used to
	// scale quorum thresholds.
	ActiveCount() int

	// RecordVote associates a vote's parent object hash with the voting
	// masternode, enforcing one effective vote per (masternode, signal,
	// object) at the registry level. Returns false if the registry rejects
	// the vote (e.g. masternode already voted more recently).
	RecordVote(outpoint wire.OutPoint, parentHash chainhash.Hash) bool

	// RemoveObjectReferences asks the registry to drop any bookkeeping it
	// keeps against a governance object that is being erased.
	RemoveObjectReferences(hash chainhash.Hash)

	// AskForMN requests that peer send us information about the masternode
	// named by outpoint, because we could not resolve it locally.
	AskForMN(peerAddr string, outpoint wire.OutPoint)
}

// ConnectionManager is the narrow slice of the peer connection manager the
// engines need: push a message to one peer, relay to everyone, and obtain a
// point-in-time snapshot of connected peers without holding any lock across
// the iteration (the "snapshot helper" in spec section 5).
type ConnectionManager interface {
	// Push enqueues msg for delivery to the single peer at addr.
	Push(addr string, msg interface{})

	// Relay enqueues msg for delivery to every peer whose protocol version is
	// at least minProto, typically as an INV announcement.
	Relay(msg interface{}, minProto int)

	// Peers returns a snapshot copy of currently connected peer addresses.
	Peers() []string

	// Misbehaving applies a misbehavior penalty to the peer at addr. score is
	// additive; the host owns ban thresholds and disconnection policy.
	Misbehaving(addr string, score int, reason string)

	// PeerRole reports whether addr currently names a masternode-authenticated
	// or inbound connection, so the gossip relay can skip it when soliciting
	// votes to avoid amplification. ok is false if addr is not connected.
	PeerRole(addr string) (isMasternode bool, isInbound bool, ok bool)
}

// Chain exposes the minimum chain-tip and mempool surface the engines need.
// Full transaction validation is delegated to the host, per spec Non-goals.
type Chain interface {
	Height() int32
	MempoolAccept(tx *wire.MsgTx) error
	InitialBlockDownload() bool

	// CollateralConfirmations resolves the confirmation depth of the
	// collateral transaction named by txid, so the Governance Store can
	// postpone an otherwise-valid proposal until its collateral is buried
	// deeply enough. ok is false if the host cannot find txid at all.
	CollateralConfirmations(txid chainhash.Hash) (confs int32, ok bool)
}

// Clock exposes the node's notion of time, separated from wall-clock so tests
// can drive deterministic timeouts.
type Clock interface {
	NowSeconds() int64
	AdjustedTime() time.Time
}

// Rng exposes the cryptographically secure randomness the Mix Coordinator
// needs for session IDs and input/output shuffling.
type Rng interface {
	RandomUint32(max uint32) uint32
	Shuffle(n int, swap func(i, j int))
}

// Scheduler lets the engine runtime register the periodic tick described in
// spec section 4.6, without engines spawning their own goroutines.
type Scheduler interface {
	ScheduleEvery(fn func(), interval time.Duration) (cancel func())
}
