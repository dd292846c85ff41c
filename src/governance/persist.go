package governance

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger"
	"github.com/ugorji/go/codec"

	"github.com/ChainCoinUnlimited/ChainCoin/src/ratelimit"
)

// snapshotVersion is bumped whenever Snapshot's shape changes in a way that
// makes an old on-disk blob unreadable. A mismatched version means the
// persisted store is dropped and rebuilt from network sync rather than
// partially decoded, per spec section 4.2's Serialization subsection.
const snapshotVersion = "governance-snapshot-v1"

const snapshotDBKey = "governance/snapshot"

// Snapshot is the single blob the store is optionally persisted as: a
// version string plus the erased set, invalid-vote LRU, orphan-vote LRU,
// object map, and per-masternode rate-check state (spec section 4.2).
type Snapshot struct {
	Version      string
	Objects      []*Object
	Erased       []chainhash.Hash
	InvalidVotes []string
	OrphanVotes  []*Vote

	// RateState is keyed by "txid:index" rather than wire.OutPoint directly,
	// since a struct key cannot round-trip through JSON.
	RateState map[string]ratelimit.State
}

// outpointKey formats op the same way everywhere a wire.OutPoint needs a
// string key (JSON map keys, cache keys).
func outpointKey(op wire.OutPoint) string {
	return op.String()
}

// parseOutpointKey reverses outpointKey, used when reloading persisted rate
// state. The format is "hash:index", as produced by wire.OutPoint.String().
func parseOutpointKey(key string) (wire.OutPoint, error) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return wire.OutPoint{}, fmt.Errorf("malformed outpoint key %q", key)
	}
	hash, err := chainhash.NewHashFromStr(key[:idx])
	if err != nil {
		return wire.OutPoint{}, err
	}
	index, err := strconv.ParseUint(key[idx+1:], 10, 32)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}

// Snapshot captures a consistent point-in-time copy of the store and rate
// tracker for persistence. cs_governance is held for the duration, matching
// the "readers requiring a consistent snapshot... take the same lock" policy
// of spec section 5.
func (s *Store) Snapshot(rate *ratelimit.Tracker) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := make([]*Object, 0, len(s.objects))
	for _, obj := range s.objects {
		objects = append(objects, obj)
	}

	erased := make([]chainhash.Hash, 0, len(s.erased))
	for h := range s.erased {
		erased = append(erased, h)
	}

	orphanVotes := make([]*Vote, 0, len(s.orphanVoteData))
	for _, v := range s.orphanVoteData {
		orphanVotes = append(orphanVotes, v)
	}

	rateState := make(map[string]ratelimit.State)
	for op, state := range rate.Snapshot() {
		rateState[outpointKey(op)] = state
	}

	return Snapshot{
		Version:      snapshotVersion,
		Objects:      objects,
		Erased:       erased,
		InvalidVotes: s.invalidVotes.Keys(),
		OrphanVotes:  orphanVotes,
		RateState:    rateState,
	}
}

// LoadSnapshot replaces the store's contents with snap, rebuilding the
// voteToObject index by walking each object's own vote set, and restores
// rate's per-masternode buffers. Callers must check snap.Version against
// snapshotVersion themselves (via Persister.Load) before calling this.
func (s *Store) LoadSnapshot(snap Snapshot, rate *ratelimit.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects = make(map[chainhash.Hash]*Object, len(snap.Objects))
	for _, obj := range snap.Objects {
		s.objects[obj.Hash] = obj
		for voteHash := range obj.Votes {
			s.voteToObject.Add(voteHash.String(), obj.Hash.String())
		}
	}

	s.erased = make(map[chainhash.Hash]struct{}, len(snap.Erased))
	for _, h := range snap.Erased {
		s.erased[h] = struct{}{}
	}

	for _, key := range snap.InvalidVotes {
		s.invalidVotes.Add(key, struct{}{})
	}

	s.orphanVoteData = make(map[chainhash.Hash]*Vote, len(snap.OrphanVotes))
	for _, v := range snap.OrphanVotes {
		s.orphanVoteData[v.Hash] = v
		s.orphanVoteSets.Put(v.ParentObjectHash.String(), v.Hash.String())
	}

	rateState := make(map[wire.OutPoint]ratelimit.State, len(snap.RateState))
	for key, state := range snap.RateState {
		op, err := parseOutpointKey(key)
		if err != nil {
			continue
		}
		rateState[op] = state
	}
	rate.Restore(rateState)
}

// Persister round-trips a Snapshot through a badger database as a single
// canonical-JSON blob, grounded on the same codec.JsonHandle marshaling
// babble uses for its hashgraph Frame.
type Persister struct {
	db *badger.DB
}

// OpenPersister opens (creating if necessary) a badger database rooted at
// dir for governance snapshot storage.
func OpenPersister(dir string) (*Persister, error) {
	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Persister{db: db}, nil
}

// Close releases the underlying database handle.
func (p *Persister) Close() error {
	return p.db.Close()
}

// Save encodes snap as canonical JSON and writes it under a single fixed
// key, overwriting whatever was there before.
func (p *Persister) Save(snap Snapshot) error {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)
	if err := enc.Encode(snap); err != nil {
		return err
	}

	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotDBKey), buf.Bytes())
	})
}

// Load reads and decodes the persisted snapshot, if any. ok is false if no
// snapshot has ever been saved, or if its version does not match
// snapshotVersion — in both cases the caller should proceed with an empty
// store and let network sync rebuild it, per spec section 4.2.
func (p *Persister) Load() (snap Snapshot, ok bool, err error) {
	var raw []byte
	err = p.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(snapshotDBKey))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		raw, getErr = item.ValueCopy(nil)
		return getErr
	})
	if err != nil || raw == nil {
		return Snapshot{}, false, err
	}

	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bytes.NewReader(raw), jh)
	if decErr := dec.Decode(&snap); decErr != nil {
		return Snapshot{}, false, decErr
	}

	if snap.Version != snapshotVersion {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}
