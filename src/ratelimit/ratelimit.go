// Package ratelimit implements the fixed-capacity ring buffer rate check
// described in spec section 4.4: a per-masternode history of object-creation
// timestamps, used to reject triggers created faster than the network's
// superblock cadence allows.
package ratelimit

import (
	"math"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// buffer is a fixed-size ring of the most recent creation timestamps for one
// masternode.
type buffer struct {
	capacity  int
	items     []int64
	next      int
	full      bool
	statusOK  bool
}

func newBuffer(capacity int) *buffer {
	return &buffer{
		capacity: capacity,
		items:    make([]int64, capacity),
		statusOK: true,
	}
}

// add appends t, displacing the oldest entry once the buffer is full.
func (b *buffer) add(t int64) {
	b.items[b.next] = t
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

// snapshot returns the currently held timestamps, oldest-write-order
// irrelevant since only min/max/count matter for rate().
func (b *buffer) snapshot() []int64 {
	if !b.full {
		return b.items[:b.next]
	}
	return b.items
}

// rate returns count / (max - min) once the buffer is full, 0 while it is
// still filling, and +Inf if every recorded timestamp coincides.
func (b *buffer) rate() float64 {
	items := b.snapshot()
	if !b.full {
		return 0
	}
	min, max := items[0], items[0]
	for _, t := range items[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	if max == min {
		return math.Inf(1)
	}
	return float64(len(items)) / float64(max-min)
}

// Tracker holds one ring buffer per masternode outpoint and implements the
// trigger rate policy of spec section 4.4.
type Tracker struct {
	mu             sync.Mutex
	bufferCapacity int
	buffers        map[wire.OutPoint]*buffer
}

// NewTracker creates a Tracker whose buffers hold bufferCapacity timestamps
// each (RATE_BUFFER_SIZE in spec section 6).
func NewTracker(bufferCapacity int) *Tracker {
	return &Tracker{
		bufferCapacity: bufferCapacity,
		buffers:        make(map[wire.OutPoint]*buffer),
	}
}

func (t *Tracker) bufferFor(outpoint wire.OutPoint) *buffer {
	b, ok := t.buffers[outpoint]
	if !ok {
		b = newBuffer(t.bufferCapacity)
		t.buffers[outpoint] = b
	}
	return b
}

// CheckResult is the outcome of a rate check: whether the object passes, and
// whether the check was a first-pass "bypass" that must be re-checked once
// more expensive validation (signature verification) has succeeded.
type CheckResult struct {
	Allowed   bool
	Bypassed  bool
	Rate      float64
}

// CheckTrigger applies the spec 4.4 policy for a trigger created at
// createdTime, given the current adjusted time now, superblockCycleSeconds,
// and maxFutureDeviationSeconds. forced must be true for the decision that
// actually gates acceptance; a non-forced call may set Bypassed=true,
// signalling the caller to recheck after signature verification before
// relying on the result.
func (t *Tracker) CheckTrigger(outpoint wire.OutPoint, createdTime, now, superblockCycleSeconds, maxFutureDeviationSeconds int64, forced bool) CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if createdTime < now-2*superblockCycleSeconds {
		return CheckResult{Allowed: false}
	}
	if createdTime > now+maxFutureDeviationSeconds {
		return CheckResult{Allowed: false}
	}

	if !forced {
		return CheckResult{Allowed: true, Bypassed: true}
	}

	b := t.bufferFor(outpoint)

	probe := *b
	probe.items = append([]int64(nil), b.items...)
	probe.add(createdTime)
	rate := probe.rate()

	maxRate := 2 * 1.1 / float64(superblockCycleSeconds)
	if rate > maxRate {
		b.statusOK = false
		return CheckResult{Allowed: false, Rate: rate}
	}

	b.statusOK = true
	return CheckResult{Allowed: true, Rate: rate}
}

// Record appends createdTime to outpoint's buffer, called once an object has
// been fully accepted (after CheckTrigger(..., forced=true) passed).
func (t *Tracker) Record(outpoint wire.OutPoint, createdTime int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bufferFor(outpoint).add(createdTime)
}

// Reset clears the latched bad status for outpoint, e.g. once a full
// superblock cycle has elapsed.
func (t *Tracker) Reset(outpoint wire.OutPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bufferFor(outpoint).statusOK = true
}

// StatusOK reports whether outpoint is currently clear of the bad latch; it
// returns false while the latch is set.
func (t *Tracker) StatusOK(outpoint wire.OutPoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.bufferFor(outpoint).statusOK
}

// Count returns the number of masternodes currently tracked.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.buffers)
}

// State is the serializable form of one masternode's ring buffer, per spec
// section 4.2's "per-masternode rate-check state" persistence field.
type State struct {
	Items    []int64
	Next     int
	Full     bool
	StatusOK bool
}

// Snapshot returns the persistable state of every tracked masternode.
func (t *Tracker) Snapshot() map[wire.OutPoint]State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[wire.OutPoint]State, len(t.buffers))
	for op, b := range t.buffers {
		out[op] = State{
			Items:    append([]int64(nil), b.items...),
			Next:     b.next,
			Full:     b.full,
			StatusOK: b.statusOK,
		}
	}
	return out
}

// Restore replaces the Tracker's buffers with previously snapshotted state,
// used when loading a persisted governance snapshot at startup.
func (t *Tracker) Restore(states map[wire.OutPoint]State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buffers = make(map[wire.OutPoint]*buffer, len(states))
	for op, s := range states {
		b := newBuffer(t.bufferCapacity)
		copy(b.items, s.Items)
		b.next = s.Next
		b.full = s.Full
		b.statusOK = s.StatusOK
		t.buffers[op] = b
	}
}
