package gossip

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
)

// PeerKind distinguishes the peers request_votes is allowed to solicit: only
// outbound, non-masternode connections are asked, to avoid amplification
// per spec section 4.3.
type PeerKind int

const (
	RegularOutbound PeerKind = iota
	MasternodeRole
	Inbound
)

// voteRequestState tracks, per (object hash, peer), the last time votes for
// that object were requested from that peer.
type voteRequestState struct {
	lastAsked map[chainhash.Hash]map[string]int64
}

func newVoteRequestState() *voteRequestState {
	return &voteRequestState{lastAsked: make(map[chainhash.Hash]map[string]int64)}
}

func (v *voteRequestState) recentlyAsked(hash chainhash.Hash, peer string, now int64, retry int64) bool {
	byPeer, ok := v.lastAsked[hash]
	if !ok {
		return false
	}
	last, ok := byPeer[peer]
	return ok && now-last < retry
}

func (v *voteRequestState) record(hash chainhash.Hash, peer string, now int64) {
	byPeer, ok := v.lastAsked[hash]
	if !ok {
		byPeer = make(map[string]int64)
		v.lastAsked[hash] = byPeer
	}
	byPeer[peer] = now
}

func (v *voteRequestState) concurrentAskers(hash chainhash.Hash) int {
	return len(v.lastAsked[hash])
}

// PeerInfo is what the scheduler tells Relay about each candidate peer.
type PeerInfo struct {
	Addr string
	Kind PeerKind
}

// Relay drives request_votes: periodic vote-bloom solicitation for tracked
// objects, per spec section 4.3.
type Relay struct {
	cfg   *config.Config
	conn  requester
	state *voteRequestState
}

// requester is the narrow slice of host.ConnectionManager Relay needs to
// push a sync-request payload.
type requester interface {
	Push(addr string, msg interface{})
}

// NewRelay builds a Relay bounding concurrent per-object solicitations and
// retry cadence from cfg.
func NewRelay(cfg *config.Config, conn requester) *Relay {
	return &Relay{cfg: cfg, conn: conn, state: newVoteRequestState()}
}

// syncRequest is the MNGOVERNANCESYNC payload requesting votes on an object.
type syncRequest struct {
	Hash chainhash.Hash
}

// RequestVotes implements request_votes: for each tracked object (triggers
// first), solicit up to PeersPerHashMax eligible peers that have not been
// asked within VoteRequestRetry, per spec section 4.3.
func (r *Relay) RequestVotes(objects []*governance.Object, peers []PeerInfo, now int64) {
	prioritized := prioritizeTriggers(objects)

	eligible := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		if p.Kind == RegularOutbound {
			eligible = append(eligible, p)
		}
	}

	retrySeconds := int64(r.cfg.VoteRequestRetry / time.Second)
	for _, obj := range prioritized {
		asked := r.state.concurrentAskers(obj.Hash)
		for _, p := range eligible {
			if asked >= r.cfg.PeersPerHashMax {
				break
			}
			if r.state.recentlyAsked(obj.Hash, p.Addr, now, retrySeconds) {
				continue
			}
			r.conn.Push(p.Addr, syncRequest{Hash: obj.Hash})
			r.state.record(obj.Hash, p.Addr, now)
			asked++
		}
	}
}

// prioritizeTriggers orders triggers ahead of proposals, preserving relative
// order within each group.
func prioritizeTriggers(objects []*governance.Object) []*governance.Object {
	out := make([]*governance.Object, 0, len(objects))
	for _, o := range objects {
		if o.Type == governance.Trigger {
			out = append(out, o)
		}
	}
	for _, o := range objects {
		if o.Type != governance.Trigger {
			out = append(out, o)
		}
	}
	return out
}
