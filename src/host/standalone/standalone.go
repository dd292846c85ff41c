// Package standalone is a single-node host implementation for running
// masterd without a real peer-to-peer transport or chain indexer wired in,
// grounded on babble's proxy/dummy: an in-memory stand-in that satisfies
// the host interfaces directly so the run command has something concrete
// to construct an engine.Engine over, the wire envelope, handshake, and
// chain itself being out of scope here.
package standalone

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
)

// Host is a single-node host.ConnectionManager, host.Chain, and
// host.MasternodeRegistry all in one: no peers are ever connected, and the
// local masternode outpoint is the only one ever resolved.
type Host struct {
	mu sync.Mutex

	logger *logrus.Entry

	height int32

	selfOutpoint wire.OutPoint
	selfPubKey   []byte
}

// New builds a Host that knows about exactly one masternode: the local
// node's own staked outpoint, signing with pubKey.
func New(selfOutpoint wire.OutPoint, pubKey []byte, logger *logrus.Entry) *Host {
	return &Host{
		logger:       logger,
		selfOutpoint: selfOutpoint,
		selfPubKey:   pubKey,
	}
}

// SetHeight updates the chain height reported by Height, called by whatever
// external process feeds masterd new blocks.
func (h *Host) SetHeight(height int32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.height = height
}

// --- host.ConnectionManager ---

// Push logs the message that would have been sent to addr; there is no
// transport to actually deliver it.
func (h *Host) Push(addr string, msg interface{}) {
	h.logger.WithFields(logrus.Fields{"addr": addr, "msg": msg}).Debug("standalone push (no transport)")
}

// Relay logs the message that would have been broadcast.
func (h *Host) Relay(msg interface{}, minProto int) {
	h.logger.WithField("msg", msg).Debug("standalone relay (no transport)")
}

// Peers always returns empty: a standalone host has no peers.
func (h *Host) Peers() []string { return nil }

// Misbehaving logs the penalty that would have been applied.
func (h *Host) Misbehaving(addr string, score int, reason string) {
	h.logger.WithFields(logrus.Fields{"addr": addr, "score": score, "reason": reason}).Warn("standalone misbehaving (no ban policy)")
}

// PeerRole always reports unknown: a standalone host has no connections.
func (h *Host) PeerRole(addr string) (isMasternode bool, isInbound bool, ok bool) {
	return false, false, false
}

// --- host.Chain ---

// Height returns the height last set with SetHeight.
func (h *Host) Height() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height
}

// MempoolAccept always accepts: standalone has no mempool to validate
// against.
func (h *Host) MempoolAccept(tx *wire.MsgTx) error { return nil }

// InitialBlockDownload always reports false.
func (h *Host) InitialBlockDownload() bool { return false }

// CollateralConfirmations always reports collateral as deeply buried,
// since standalone has no chain index to consult.
func (h *Host) CollateralConfirmations(txid chainhash.Hash) (int32, bool) {
	return 9999, true
}

// --- host.MasternodeRegistry ---

// Lookup resolves only the local masternode's own outpoint.
func (h *Host) Lookup(outpoint wire.OutPoint) (host.MasternodeInfo, bool) {
	if outpoint != h.selfOutpoint {
		return host.MasternodeInfo{}, false
	}
	return host.MasternodeInfo{PubKey: h.selfPubKey}, true
}

// Has reports whether outpoint is the local masternode's own.
func (h *Host) Has(outpoint wire.OutPoint) bool {
	return outpoint == h.selfOutpoint
}

// ActiveCount is always 1: the local masternode is the only one known.
func (h *Host) ActiveCount() int { return 1 }

// RecordVote always succeeds, since standalone has no conflicting voters to
// arbitrate between.
func (h *Host) RecordVote(outpoint wire.OutPoint, parentHash chainhash.Hash) bool {
	return true
}

// RemoveObjectReferences is a no-op: standalone keeps no per-object
// bookkeeping of its own.
func (h *Host) RemoveObjectReferences(hash chainhash.Hash) {}

// AskForMN logs the request; there is no peer to actually ask.
func (h *Host) AskForMN(peerAddr string, outpoint wire.OutPoint) {
	h.logger.WithFields(logrus.Fields{"peer": peerAddr, "outpoint": outpoint}).Debug("standalone AskForMN (no transport)")
}
