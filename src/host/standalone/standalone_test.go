package standalone

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
)

func testHost(t *testing.T) (*Host, wire.OutPoint) {
	t.Helper()
	op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	h := New(op, []byte("pubkey"), logrus.NewEntry(logrus.New()))
	return h, op
}

func TestLookupResolvesOnlySelf(t *testing.T) {
	h, op := testHost(t)

	if _, ok := h.Lookup(op); !ok {
		t.Fatalf("Lookup(self) = not ok, want ok")
	}
	other := wire.OutPoint{Hash: chainhash.Hash{2}, Index: 0}
	if _, ok := h.Lookup(other); ok {
		t.Fatalf("Lookup(other) = ok, want not ok")
	}
}

func TestSetHeightRoundTrips(t *testing.T) {
	h, _ := testHost(t)
	h.SetHeight(42)
	if h.Height() != 42 {
		t.Fatalf("Height() = %d, want 42", h.Height())
	}
}

func TestPeerRoleAlwaysUnknown(t *testing.T) {
	h, _ := testHost(t)
	if _, _, ok := h.PeerRole("anyone"); ok {
		t.Fatalf("PeerRole() = ok, want not ok (standalone has no connections)")
	}
}
