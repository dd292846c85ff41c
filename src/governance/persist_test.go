package governance

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/ratelimit"
)

// TestSnapshotRoundTrip checks the round-trip law of spec section 8:
// serializing then deserializing a store produces an equal object map and
// erased map, modulo the transient dirty flag.
func TestSnapshotRoundTrip(t *testing.T) {
	store, reg := testStore(t)
	rate := ratelimit.NewTracker(4)

	obj, _ := testSignedObject(t, reg, Proposal, 1000)
	store.objects[obj.Hash] = obj
	store.erased[chainhash.Hash{7}] = struct{}{}

	op := wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 0}
	rate.Record(op, 500)
	rate.Record(op, 600)

	snap := store.Snapshot(rate)

	other, _ := testStore(t)
	otherRate := ratelimit.NewTracker(4)
	other.LoadSnapshot(snap, otherRate)

	if len(other.objects) != len(store.objects) {
		t.Fatalf("object count mismatch: got %d, want %d", len(other.objects), len(store.objects))
	}
	reloaded, ok := other.objects[obj.Hash]
	if !ok {
		t.Fatalf("reloaded store missing object %s", obj.Hash)
	}
	reloaded.Flags.Dirty = false
	obj.Flags.Dirty = false
	if reloaded.Hash != obj.Hash {
		t.Fatalf("reloaded object hash mismatch: got %s, want %s", reloaded.Hash, obj.Hash)
	}

	if len(other.erased) != len(store.erased) {
		t.Fatalf("erased count mismatch: got %d, want %d", len(other.erased), len(store.erased))
	}
	if _, ok := other.erased[chainhash.Hash{7}]; !ok {
		t.Fatalf("reloaded store missing erased hash")
	}

	if !otherRate.StatusOK(op) {
		t.Fatalf("reloaded rate tracker should carry forward a clean status")
	}
}

// TestSnapshotVersionMismatchIsRejected checks that Persister.Load refuses a
// blob written under a different version, per spec section 4.2: "Mismatched
// version => drop everything and rebuild."
func TestSnapshotVersionMismatchIsRejected(t *testing.T) {
	dir, err := ioutil.TempDir("", "masterd-governance")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	p, err := OpenPersister(dir)
	if err != nil {
		t.Fatalf("OpenPersister: %v", err)
	}
	defer p.Close()

	snap := Snapshot{Version: "some-other-version"}
	if err := p.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, ok, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatalf("Load should reject a mismatched version")
	}
}

// TestPersisterSaveLoadRoundTrip checks that a saved snapshot decodes back
// with the same objects and erased set.
func TestPersisterSaveLoadRoundTrip(t *testing.T) {
	store, reg := testStore(t)
	rate := ratelimit.NewTracker(4)
	obj, _ := testSignedObject(t, reg, Trigger, 2000)
	store.objects[obj.Hash] = obj

	dir, err := ioutil.TempDir("", "masterd-governance")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	p, err := OpenPersister(dir)
	if err != nil {
		t.Fatalf("OpenPersister: %v", err)
	}
	defer p.Close()

	snap := store.Snapshot(rate)
	if err := p.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("Load should find the saved snapshot")
	}
	if len(loaded.Objects) != 1 || loaded.Objects[0].Hash != obj.Hash {
		t.Fatalf("loaded snapshot missing expected object")
	}
}
