package governance

import (
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/ratelimit"
)

// fakeRegistry is a minimal in-memory host.MasternodeRegistry double.
type fakeRegistry struct {
	known  map[wire.OutPoint]host.MasternodeInfo
	voted  map[wire.OutPoint]chainhash.Hash
	active int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		known:  make(map[wire.OutPoint]host.MasternodeInfo),
		voted:  make(map[wire.OutPoint]chainhash.Hash),
		active: 100,
	}
}

func (r *fakeRegistry) Lookup(op wire.OutPoint) (host.MasternodeInfo, bool) {
	info, ok := r.known[op]
	return info, ok
}
func (r *fakeRegistry) Has(op wire.OutPoint) bool { _, ok := r.known[op]; return ok }
func (r *fakeRegistry) ActiveCount() int          { return r.active }
func (r *fakeRegistry) RecordVote(op wire.OutPoint, parent chainhash.Hash) bool {
	r.voted[op] = parent
	return true
}
func (r *fakeRegistry) RemoveObjectReferences(chainhash.Hash)            {}
func (r *fakeRegistry) AskForMN(addr string, op wire.OutPoint)           {}

// fakeChain reports every collateral transaction as deeply buried.
type fakeChain struct{}

func (fakeChain) Height() int32                     { return 1000 }
func (fakeChain) MempoolAccept(*wire.MsgTx) error   { return nil }
func (fakeChain) InitialBlockDownload() bool        { return false }
func (fakeChain) CollateralConfirmations(chainhash.Hash) (int32, bool) {
	return 100, true
}

func testStore(t *testing.T) (*Store, *fakeRegistry) {
	t.Helper()
	cfg := config.NewTestConfig(t)
	reg := newFakeRegistry()
	store := NewStore(cfg, reg, fakeChain{}, ratelimit.NewTracker(cfg.RateBufferSize), cfg.Logger())
	return store, reg
}

func testSignedObject(t *testing.T, reg *fakeRegistry, objType ObjectType, createdTime int64) (*Object, *btcec.PrivateKey) {
	t.Helper()
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	op := wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 0}
	reg.known[op] = host.MasternodeInfo{PubKey: priv.PubKey().SerializeCompressed()}

	obj := NewObject(chainhash.Hash{}, 1, createdTime, chainhash.Hash{9}, []byte("data"), objType, &op)
	if err := obj.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return obj, priv
}

func TestHandleObjectRejectsUnsolicited(t *testing.T) {
	store, reg := testStore(t)
	obj, _ := testSignedObject(t, reg, Proposal, 1000)

	got := store.HandleObject(obj, "peer1", 1000)
	if got.Kind != Warning {
		t.Fatalf("HandleObject() kind = %v, want Warning for unsolicited object", got.Kind)
	}
}

func TestHandleObjectAcceptsSolicitedValidProposal(t *testing.T) {
	store, reg := testStore(t)
	obj, _ := testSignedObject(t, reg, Proposal, 1000)

	store.RequestObject(obj.Hash)
	got := store.HandleObject(obj, "peer1", 1000)
	if !got.IsOK() {
		t.Fatalf("HandleObject() = %+v, want OK", got)
	}
	if !store.Has(obj.Hash) {
		t.Fatalf("Has(%s) = false after acceptance", obj.Hash)
	}
}

func TestHandleObjectRejectsBadSignature(t *testing.T) {
	store, reg := testStore(t)
	obj, _ := testSignedObject(t, reg, Proposal, 1000)
	obj.DataBlob = []byte("tampered")

	store.RequestObject(obj.Hash)
	got := store.HandleObject(obj, "peer1", 1000)
	if got.Kind != PermanentError {
		t.Fatalf("HandleObject() kind = %v, want PermanentError for tampered data", got.Kind)
	}
}

func TestHandleObjectParksUnknownMasternode(t *testing.T) {
	store, reg := testStore(t)
	obj, _ := testSignedObject(t, reg, Proposal, 1000)
	op := *obj.MasternodeOutpoint
	delete(reg.known, op)

	store.RequestObject(obj.Hash)
	got := store.HandleObject(obj, "peer1", 1000)
	if got.Kind != Warning {
		t.Fatalf("HandleObject() kind = %v, want Warning for unknown masternode", got.Kind)
	}
	if !store.Has(obj.Hash) {
		t.Fatalf("Has(%s) = false, want true once parked in masternode_orphan", obj.Hash)
	}
}

func TestHandleVoteParksOnUnknownParentThenReplaysOnArrival(t *testing.T) {
	store, reg := testStore(t)
	obj, objPriv := testSignedObject(t, reg, Proposal, 1000)

	voterPriv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	voterOp := wire.OutPoint{Hash: chainhash.Hash{4, 5, 6}, Index: 1}
	reg.known[voterOp] = host.MasternodeInfo{PubKey: voterPriv.PubKey().SerializeCompressed()}

	vote := NewVote(voterOp, obj.Hash, Funding, Yes, 1000)
	if err := vote.Sign(voterPriv); err != nil {
		t.Fatalf("Sign vote: %v", err)
	}

	store.RequestVote(vote.Hash)
	got := store.HandleVote(vote, "peer1", 1000)
	if got.Kind != Warning {
		t.Fatalf("HandleVote() kind = %v, want Warning while parent unknown", got.Kind)
	}

	store.RequestObject(obj.Hash)
	if objOutcome := store.HandleObject(obj, "peer1", 1000); !objOutcome.IsOK() {
		t.Fatalf("HandleObject() = %+v, want OK", objOutcome)
	}
	_ = objPriv

	stored, ok := store.Get(obj.Hash)
	if !ok {
		t.Fatalf("Get(%s) missing after HandleObject", obj.Hash)
	}
	if !stored.HasVote(vote.Hash) {
		t.Fatalf("parked vote was not replayed onto its parent once it arrived")
	}
}

func TestHandleVoteRejectsKnownInvalidVoteWithPenalty(t *testing.T) {
	store, reg := testStore(t)
	obj, _ := testSignedObject(t, reg, Proposal, 1000)
	store.RequestObject(obj.Hash)
	if got := store.HandleObject(obj, "peer1", 1000); !got.IsOK() {
		t.Fatalf("HandleObject() = %+v, want OK", got)
	}

	voterPriv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	voterOp := wire.OutPoint{Hash: chainhash.Hash{7, 8, 9}, Index: 2}
	reg.known[voterOp] = host.MasternodeInfo{PubKey: voterPriv.PubKey().SerializeCompressed()}

	vote := NewVote(voterOp, obj.Hash, Funding, Yes, 1000)
	if err := vote.Sign(voterPriv); err != nil {
		t.Fatalf("Sign vote: %v", err)
	}
	vote.SigR.Add(vote.SigR, vote.SigR)

	store.RequestVote(vote.Hash)
	first := store.HandleVote(vote, "peer1", 1000)
	if first.Kind != PermanentError {
		t.Fatalf("HandleVote() kind = %v, want PermanentError for bad signature", first.Kind)
	}

	// Resubmitting the same already-known-invalid vote must itself be
	// penalized, not silently dropped as an ordinary duplicate.
	store.RequestVote(vote.Hash)
	second := store.HandleVote(vote, "peer2", 1000)
	if second.Kind != PermanentError || second.Penalty != 20 {
		t.Fatalf("HandleVote() = %+v, want PermanentError with a 20 penalty for a known invalid vote", second)
	}
}

func TestUpdateCachesAndCleanComputesFundingFlag(t *testing.T) {
	store, reg := testStore(t)
	store.registry.(*fakeRegistry).active = 10 // quorum floors at MinQuorum regardless

	obj, _ := testSignedObject(t, reg, Proposal, 1000)
	store.RequestObject(obj.Hash)
	if outcome := store.HandleObject(obj, "peer1", 1000); !outcome.IsOK() {
		t.Fatalf("HandleObject() = %+v, want OK", outcome)
	}

	for i := 0; i < config.DefaultMinQuorum; i++ {
		priv, err := btcec.NewPrivateKey(btcec.S256())
		if err != nil {
			t.Fatalf("NewPrivateKey: %v", err)
		}
		op := wire.OutPoint{Hash: chainhash.Hash{byte(i + 10)}, Index: 0}
		reg.known[op] = host.MasternodeInfo{PubKey: priv.PubKey().SerializeCompressed()}

		vote := NewVote(op, obj.Hash, Funding, Yes, 1000+int64(i))
		if err := vote.Sign(priv); err != nil {
			t.Fatalf("Sign vote %d: %v", i, err)
		}
		store.RequestVote(vote.Hash)
		if outcome := store.HandleVote(vote, "peer1", 1000+int64(i)); !outcome.IsOK() {
			t.Fatalf("HandleVote(%d) = %+v, want OK", i, outcome)
		}
	}

	store.UpdateCachesAndClean(2000)

	stored, _ := store.Get(obj.Hash)
	if !stored.Flags.Funding {
		t.Fatalf("Flags.Funding = false after MinQuorum yes votes, want true")
	}
}
