// Package gossip implements the Gossip/Sync Layer of spec section 4.3:
// inventory solicitation gating, bulk sync, and anti-flood bookkeeping for
// the Governance Store's objects and votes.
package gossip

import (
	"hash"
	"hash/fnv"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
)

// InvKind distinguishes the two inventory kinds the sync layer tracks.
type InvKind int

const (
	InvObject InvKind = iota
	InvVote
)

func (k InvKind) String() string {
	if k == InvVote {
		return "vote"
	}
	return "object"
}

// syncStatusCount is the SYNCSTATUSCOUNT payload of spec section 6.
type syncStatusCount struct {
	Kind  InvKind
	Count int
}

// invAnnouncement is the INV payload advertising a single hash.
type invAnnouncement struct {
	Kind InvKind
	Hash chainhash.Hash
}

// Layer drives inventory advertisement, solicitation gating, and bulk
// sync/anti-flood bookkeeping on top of a Store.
type Layer struct {
	mu sync.Mutex

	store *governance.Store
	conn  host.ConnectionManager

	// fulfilledSync tracks peers that have already run a full sync_all on
	// this connection, the "netfulfilledman-equivalent" of spec section 4.3.
	fulfilledSync map[string]bool
}

// NewLayer builds a Layer over store, relaying and pushing through conn.
func NewLayer(store *governance.Store, conn host.ConnectionManager) *Layer {
	return &Layer{
		store:         store,
		conn:          conn,
		fulfilledSync: make(map[string]bool),
	}
}

// ConfirmInventoryRequest implements confirm_inventory_request: returns true
// ("please fetch") unless store.Has knows the hash, marking it requested as a
// side effect so a later handler accepts exactly once. store.Has looks only
// at objects and tombstones, so for InvVote a vote that is already stored is
// not recognized: the hash is marked requested and true is returned.
func (l *Layer) ConfirmInventoryRequest(kind InvKind, hash chainhash.Hash) bool {
	if l.store.Has(hash) {
		return false
	}
	switch kind {
	case InvObject:
		l.store.RequestObject(hash)
	case InvVote:
		l.store.RequestVote(hash)
	}
	return true
}

// OnPeerConnected resets per-connection anti-flood state, called once when a
// peer's session begins.
func (l *Layer) OnPeerConnected(peer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fulfilledSync, peer)
}

// SyncAll implements sync_all: advertise every non-deleted object hash, then
// send two SYNCSTATUSCOUNT summaries, per spec section 4.3. A second call
// from the same peer on the same connection is anti-flood misbehavior.
func (l *Layer) SyncAll(peer string, objectHashes []chainhash.Hash, voteCount int) bool {
	l.mu.Lock()
	if l.fulfilledSync[peer] {
		l.mu.Unlock()
		l.conn.Misbehaving(peer, 20, "repeated MNGOVERNANCESYNC on one connection")
		return false
	}
	l.fulfilledSync[peer] = true
	l.mu.Unlock()

	for _, h := range objectHashes {
		l.conn.Push(peer, invAnnouncement{Kind: InvObject, Hash: h})
	}
	l.conn.Push(peer, syncStatusCount{Kind: InvObject, Count: len(objectHashes)})
	l.conn.Push(peer, syncStatusCount{Kind: InvVote, Count: voteCount})
	return true
}

// SyncOne implements sync_one: advertise a single object and every vote on
// it that passes the requester-supplied bloom filter, per spec section 4.3.
func (l *Layer) SyncOne(peer string, obj *governance.Object, filter *bloomfilter.Filter) {
	l.conn.Push(peer, invAnnouncement{Kind: InvObject, Hash: obj.Hash})

	for _, h := range obj.VoteHashes() {
		if filter != nil && filter.Contains(voteBloomKey(h)) {
			continue
		}
		l.conn.Push(peer, invAnnouncement{Kind: InvVote, Hash: h})
	}
}

// voteBloomKey adapts a vote hash to the hash.Hash64 the bloom filter
// requires, since the requester-supplied filter holds vote hashes it
// already has.
func voteBloomKey(h chainhash.Hash) hash.Hash64 {
	sum := fnv.New64a()
	sum.Write(h[:])
	return sum
}
