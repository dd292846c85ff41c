// Package engine wires the Mix Coordinator and Governance Store/gossip Layer
// into the single runtime the host drives, exposing the explicit tick(now)
// and on_new_tip(tip) entry points of spec section 4.6 rather than spawning
// its own background goroutines.
package engine

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/gossip"
	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/mix"
)

// Engine owns the Mix Coordinator and the Governance Store/gossip Layer,
// and runs the periodic and chain-tip maintenance passes spec section 4.6
// describes.
type Engine struct {
	cfg    *config.Config
	conn   host.ConnectionManager
	logger *logrus.Entry

	Mix        *mix.Coordinator
	Governance *governance.Store
	Gossip     *gossip.Layer
	relay      *gossip.Relay
}

// New builds an Engine over already-constructed Coordinator, Store, and
// gossip Layer, since each is independently testable and this package only
// wires their periodic maintenance together.
func New(cfg *config.Config, conn host.ConnectionManager, coordinator *mix.Coordinator, store *governance.Store, layer *gossip.Layer, logger *logrus.Entry) *Engine {
	return &Engine{
		cfg:        cfg,
		conn:       conn,
		logger:     logger,
		Mix:        coordinator,
		Governance: store,
		Gossip:     layer,
		relay:      gossip.NewRelay(cfg, conn),
	}
}

// Tick runs the "every 5 minutes" maintenance pass of spec section 4.6:
// update_caches_and_clean (which subsumes clean_orphan_objects) and
// request_votes across every currently tracked object.
func (e *Engine) Tick(now int64) {
	e.Governance.UpdateCachesAndClean(now)
	e.requestVotes(now)
	e.relayDue(now)
}

// OnNewTip runs the chain-tip maintenance pass of spec section 4.6, in
// addition to everything Tick does: check_postponed_objects (folded into
// update_caches_and_clean, since both promote on collateral depth),
// check_for_complete_queue, check_pool, and check_timeout.
func (e *Engine) OnNewTip(tip int64, height int32) {
	e.Tick(tip)
	e.Mix.CheckQueueComplete(tip)
	e.Mix.CheckPool(tip)
	e.Mix.CheckTimeout(tip, height)
}

// OnPeerConnected resets per-connection gossip bookkeeping, called once by
// the host when a peer's session begins.
func (e *Engine) OnPeerConnected(peer string) {
	e.Gossip.OnPeerConnected(peer)
}

// OnPeerDisconnected releases any mixing session state held for peer,
// called once by the host when a peer's session ends.
func (e *Engine) OnPeerDisconnected(peer string, now int64) {
	e.Mix.OnPeerDisconnected(peer, now)
}

// requestVotes classifies currently connected peers and asks the gossip
// relay to solicit votes for every tracked object.
func (e *Engine) requestVotes(now int64) {
	objects := e.Governance.AllObjects()
	if len(objects) == 0 {
		return
	}

	var peers []gossip.PeerInfo
	for _, addr := range e.conn.Peers() {
		isMN, isInbound, ok := e.conn.PeerRole(addr)
		if !ok {
			continue
		}
		kind := gossip.RegularOutbound
		switch {
		case isMN:
			kind = gossip.MasternodeRole
		case isInbound:
			kind = gossip.Inbound
		}
		peers = append(peers, gossip.PeerInfo{Addr: addr, Kind: kind})
	}

	e.relay.RequestVotes(objects, peers, now)
}

// relayDue re-broadcasts objects whose additional-relay deadline (spec
// section 4.2's reliability mechanism for objects created near the future
// horizon) has elapsed.
func (e *Engine) relayDue(now int64) {
	for _, obj := range e.Governance.DueForRelay(now) {
		e.conn.Relay(objectAnnouncement{Hash: obj.Hash}, e.cfg.MinProtocolVersion)
	}
}

// objectAnnouncement is the INV payload used when re-relaying a due object.
type objectAnnouncement struct {
	Hash chainhash.Hash
}
