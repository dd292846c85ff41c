package queue

import (
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func testKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	return priv
}

func TestSignThenVerify(t *testing.T) {
	priv := testKey(t)
	q := &Queue{
		Denom:    0b0001,
		Outpoint: wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 0},
		Height:   1000,
		Status:   Open,
	}
	if err := q.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !q.Verify(priv.PubKey()) {
		t.Fatalf("Verify() = false, want true for matching key")
	}
}

func TestVerifyFailsUnderWrongKey(t *testing.T) {
	priv := testKey(t)
	other := testKey(t)
	q := &Queue{Denom: 1, Outpoint: wire.OutPoint{}, Height: 1, Status: Open}
	if err := q.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if q.Verify(other.PubKey()) {
		t.Fatalf("Verify() = true, want false under mismatched key")
	}
}

func TestExpired(t *testing.T) {
	q := &Queue{Height: 100}
	if q.Expired(101, 1) {
		t.Fatalf("Expired() = true at height+ttl == current, want false")
	}
	if !q.Expired(102, 1) {
		t.Fatalf("Expired() = false, want true once height+ttl < current")
	}
}

func TestTooFarInFuture(t *testing.T) {
	q := &Queue{Height: 105}
	if q.TooFarInFuture(104) {
		t.Fatalf("TooFarInFuture() = true for height == current+1, want false")
	}
	if !q.TooFarInFuture(103) {
		t.Fatalf("TooFarInFuture() = false, want true for height > current+1")
	}
}
