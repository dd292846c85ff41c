package gossip

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
)

func TestRequestVotesCapsConcurrentAskersPerObject(t *testing.T) {
	store, reg := testStore(t)
	conn := &fakeConn{}
	cfg := config.NewTestConfig(t)
	relay := NewRelay(cfg, conn)

	obj := testSignedObject(t, reg)
	store.RequestObject(obj.Hash)
	store.HandleObject(obj, "peer1", 1000)
	stored, _ := store.Get(obj.Hash)

	peers := []PeerInfo{
		{Addr: "peerA", Kind: RegularOutbound},
		{Addr: "peerB", Kind: RegularOutbound},
		{Addr: "peerC", Kind: RegularOutbound},
		{Addr: "peerD", Kind: RegularOutbound},
	}

	relay.RequestVotes([]*governance.Object{stored}, peers, 1000)

	if got := relay.state.concurrentAskers(stored.Hash); got != cfg.PeersPerHashMax {
		t.Fatalf("concurrentAskers() = %d, want cap of %d", got, cfg.PeersPerHashMax)
	}
	if len(conn.pushed) != cfg.PeersPerHashMax {
		t.Fatalf("pushed %d sync requests, want %d", len(conn.pushed), cfg.PeersPerHashMax)
	}
}

func TestRequestVotesSkipsMasternodeAndInboundPeers(t *testing.T) {
	store, reg := testStore(t)
	conn := &fakeConn{}
	cfg := config.NewTestConfig(t)
	relay := NewRelay(cfg, conn)

	obj := testSignedObject(t, reg)
	store.RequestObject(obj.Hash)
	store.HandleObject(obj, "peer1", 1000)
	stored, _ := store.Get(obj.Hash)

	peers := []PeerInfo{
		{Addr: "mnPeer", Kind: MasternodeRole},
		{Addr: "inPeer", Kind: Inbound},
	}

	relay.RequestVotes([]*governance.Object{stored}, peers, 1000)

	if len(conn.pushed) != 0 {
		t.Fatalf("pushed %d sync requests, want 0: masternode/inbound peers must be skipped", len(conn.pushed))
	}
}

func TestRequestVotesDoesNotReaskWithinRetryWindow(t *testing.T) {
	store, reg := testStore(t)
	conn := &fakeConn{}
	cfg := config.NewTestConfig(t)
	relay := NewRelay(cfg, conn)

	obj := testSignedObject(t, reg)
	store.RequestObject(obj.Hash)
	store.HandleObject(obj, "peer1", 1000)
	stored, _ := store.Get(obj.Hash)

	peers := []PeerInfo{{Addr: "peerA", Kind: RegularOutbound}}

	relay.RequestVotes([]*governance.Object{stored}, peers, 1000)
	if len(conn.pushed) != 1 {
		t.Fatalf("first sweep pushed %d requests, want 1", len(conn.pushed))
	}

	relay.RequestVotes([]*governance.Object{stored}, peers, 1001)
	if len(conn.pushed) != 1 {
		t.Fatalf("second sweep within retry window pushed %d requests, want still 1", len(conn.pushed))
	}

	retrySeconds := int64(cfg.VoteRequestRetry.Seconds())
	relay.RequestVotes([]*governance.Object{stored}, peers, 1000+retrySeconds+1)
	if len(conn.pushed) != 2 {
		t.Fatalf("sweep past retry window pushed total %d requests, want 2", len(conn.pushed))
	}
}

func TestRequestVotesPrioritizesTriggers(t *testing.T) {
	prop := governance.NewObject(chainhash.Hash{}, 1, 1000, chainhash.Hash{}, nil, governance.Proposal, nil)
	trig := governance.NewObject(chainhash.Hash{}, 1, 1000, chainhash.Hash{}, nil, governance.Trigger, nil)

	ordered := prioritizeTriggers([]*governance.Object{prop, trig})
	if ordered[0] != trig {
		t.Fatalf("prioritizeTriggers() did not place the trigger first")
	}
}
