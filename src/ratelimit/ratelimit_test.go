package ratelimit

import (
	"math"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func testOutpoint(i uint32) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{}, Index: i}
}

func TestBufferRetainsOnlyMostRecent(t *testing.T) {
	b := newBuffer(5)
	for i := int64(1); i <= 8; i++ {
		b.add(i)
	}
	got := b.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 items retained, got %d", len(got))
	}
	want := map[int64]bool{4: true, 5: true, 6: true, 7: true, 8: true}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("unexpected value %d retained, want one of the 5 most recent", v)
		}
	}
}

func TestRateZeroUntilFull(t *testing.T) {
	b := newBuffer(5)
	b.add(100)
	b.add(200)
	if r := b.rate(); r != 0 {
		t.Fatalf("rate() = %v, want 0 while buffer not full", r)
	}
}

func TestRateInfiniteWhenCoincident(t *testing.T) {
	b := newBuffer(5)
	for i := 0; i < 5; i++ {
		b.add(1000)
	}
	if r := b.rate(); !math.IsInf(r, 1) {
		t.Fatalf("rate() = %v, want +Inf", r)
	}
}

func TestCheckTriggerRejectsTooOld(t *testing.T) {
	tr := NewTracker(5)
	res := tr.CheckTrigger(testOutpoint(0), 0, 10_000_000, 16616*150, 3600, true)
	if res.Allowed {
		t.Fatalf("expected rejection of a too-old trigger")
	}
}

func TestCheckTriggerRejectsTooFuture(t *testing.T) {
	tr := NewTracker(5)
	now := int64(1_700_000_000)
	res := tr.CheckTrigger(testOutpoint(0), now+7200, now, 16616*150, 3600, true)
	if res.Allowed {
		t.Fatalf("expected rejection of a too-future trigger")
	}
}

func TestCheckTriggerBypassWhenNotForced(t *testing.T) {
	tr := NewTracker(5)
	now := int64(1_700_000_000)
	res := tr.CheckTrigger(testOutpoint(0), now, now, 16616*150, 3600, false)
	if !res.Allowed || !res.Bypassed {
		t.Fatalf("expected a bypassed pass-through check, got %+v", res)
	}
}

func TestSixthTriggerInOneCycleIsRateLimited(t *testing.T) {
	tr := NewTracker(5)
	outpoint := testOutpoint(0)
	cycle := int64(16616 * 150)
	base := int64(1_700_000_000)

	// Fill the buffer with 5 triggers spaced two thirds of a cycle apart: 5
	// over 8/3 cycles is 1.875 per cycle, within dMaxRate's 2.2 per cycle.
	spacing := 2 * cycle / 3
	for i := int64(0); i < 5; i++ {
		t2 := base + i*spacing
		res := tr.CheckTrigger(outpoint, t2, t2, cycle, 3600, true)
		if !res.Allowed {
			t.Fatalf("trigger %d unexpectedly rejected: %+v", i, res)
		}
		tr.Record(outpoint, t2)
	}

	// The 6th, arriving immediately after, should blow the rate past
	// dMaxRate and latch status_ok to false.
	sixth := base + 4*spacing + 1
	res := tr.CheckTrigger(outpoint, sixth, sixth, cycle, 3600, true)
	if res.Allowed {
		t.Fatalf("expected the 6th rapid trigger to be rate limited, got %+v", res)
	}
	if tr.StatusOK(outpoint) {
		t.Fatalf("expected status_ok to be latched false after rate rejection")
	}

	// Forced rechecks keep rejecting on the still-stale buffer.
	res2 := tr.CheckTrigger(outpoint, sixth+1, sixth+1, cycle, 3600, true)
	if res2.Allowed {
		t.Fatalf("expected continued rejection immediately after latching")
	}

	// Once a full cycle has elapsed, the prospective rate recomputed against
	// the same stored timestamps naturally falls back under dMaxRate, and
	// status_ok clears itself without any explicit reset.
	recovered := sixth + cycle
	res3 := tr.CheckTrigger(outpoint, recovered, recovered, cycle, 3600, true)
	if !res3.Allowed {
		t.Fatalf("expected the trigger to be allowed once a full cycle elapsed, got %+v", res3)
	}
	if !tr.StatusOK(outpoint) {
		t.Fatalf("expected status_ok to clear once the rate recovered")
	}

	// Reset remains available as an explicit administrative override.
	tr.Record(outpoint, recovered)
	tr.bufferFor(outpoint).statusOK = false
	tr.Reset(outpoint)
	if !tr.StatusOK(outpoint) {
		t.Fatalf("expected status_ok restored after Reset")
	}
}
