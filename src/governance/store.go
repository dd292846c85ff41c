package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/common"
	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/ratelimit"
)

// minCollateralConfirmations is the depth a proposal's collateral
// transaction must reach before the object leaves postponed for objects.
const minCollateralConfirmations = 6

// orphanObject is an object parked in masternodeOrphan, waiting on its
// signing masternode to resolve through the registry.
type orphanObject struct {
	obj    *Object
	expiry int64
}

// Store is the Governance Store of spec section 4.2: the indexed collection
// of objects and votes, the postponed/orphan parking buffers, and the
// quorum-derived sentinel flags recomputed on each cache-cleaning pass.
type Store struct {
	mu sync.Mutex // cs_governance

	cfg      *config.Config
	registry host.MasternodeRegistry
	chain    host.Chain
	rate     *ratelimit.Tracker
	logger   *logrus.Entry

	objects          map[chainhash.Hash]*Object
	postponed        map[chainhash.Hash]*Object
	masternodeOrphan map[chainhash.Hash]*orphanObject
	erased           map[chainhash.Hash]struct{}

	voteToObject *common.CacheMap
	invalidVotes *common.CacheMap
	lastVoteTime *common.CacheMap

	orphanVoteSets *common.CacheMultiMap
	orphanVoteData map[chainhash.Hash]*Vote

	requestedObjects map[chainhash.Hash]bool
	requestedVotes   map[chainhash.Hash]bool

	additionalRelay map[chainhash.Hash]int64
}

// NewStore builds an empty Store. Persistence, if enabled, is layered on top
// by LoadSnapshot/Snapshot in persist.go; the Store itself is purely
// in-memory.
func NewStore(cfg *config.Config, registry host.MasternodeRegistry, chain host.Chain, rate *ratelimit.Tracker, logger *logrus.Entry) *Store {
	return &Store{
		cfg:              cfg,
		registry:         registry,
		chain:            chain,
		rate:             rate,
		logger:           logger,
		objects:          make(map[chainhash.Hash]*Object),
		postponed:        make(map[chainhash.Hash]*Object),
		masternodeOrphan: make(map[chainhash.Hash]*orphanObject),
		erased:           make(map[chainhash.Hash]struct{}),
		voteToObject:     common.NewCacheMap(cfg.MaxCacheSize),
		invalidVotes:     common.NewCacheMap(cfg.MaxCacheSize),
		lastVoteTime:     common.NewCacheMap(cfg.MaxCacheSize),
		orphanVoteSets:   common.NewCacheMultiMap(cfg.MaxCacheSize),
		orphanVoteData:   make(map[chainhash.Hash]*Vote),
		requestedObjects: make(map[chainhash.Hash]bool),
		requestedVotes:   make(map[chainhash.Hash]bool),
		additionalRelay:  make(map[chainhash.Hash]int64),
	}
}

// RequestObject marks hash as solicited, so a later HandleObject for it is
// not dropped as unsolicited.
func (s *Store) RequestObject(hash chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestedObjects[hash] = true
}

// RequestVote marks hash as solicited, mirroring RequestObject for votes.
func (s *Store) RequestVote(hash chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestedVotes[hash] = true
}

// Has reports whether hash names an object in any of the live stores
// (accepted, postponed, or orphaned on an unknown masternode) or an erased
// object's tombstone, used by the gossip layer to avoid re-requesting
// inventory it already holds.
func (s *Store) Has(hash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[hash]; ok {
		return true
	}
	if _, ok := s.postponed[hash]; ok {
		return true
	}
	if _, ok := s.masternodeOrphan[hash]; ok {
		return true
	}
	_, erased := s.erased[hash]
	return erased
}

// Get returns the accepted object named by hash.
func (s *Store) Get(hash chainhash.Hash) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[hash]
	return obj, ok
}

// HandleObject validates and, if accepted, indexes obj, per spec section 4.2.
// now is the host's adjusted time in Unix seconds.
func (s *Store) HandleObject(obj *Object, fromPeer string, now int64) Exception {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requestedObjects[obj.Hash] {
		return Warn("object was not requested")
	}
	delete(s.requestedObjects, obj.Hash)

	if s.alreadyHaveLocked(obj.Hash) {
		return Warn("duplicate object")
	}

	maxFuture := int64(s.cfg.MaxFutureDeviation / time.Second)
	if obj.CreatedTime > now+maxFuture {
		return Permanent(20, "created_time too far in the future")
	}
	if len(obj.DataBlob) == 0 {
		return Permanent(20, "empty data blob")
	}
	if obj.Type == Unknown {
		return Permanent(20, "unrecognized object type")
	}
	if obj.MasternodeOutpoint == nil {
		return Permanent(20, "missing masternode outpoint")
	}

	info, ok := s.registry.Lookup(*obj.MasternodeOutpoint)
	if !ok {
		s.masternodeOrphan[obj.Hash] = &orphanObject{
			obj:    obj,
			expiry: now + int64(s.cfg.OrphanTTL/time.Second),
		}
		s.registry.AskForMN(fromPeer, *obj.MasternodeOutpoint)
		return Warn("signing masternode unknown, parked")
	}

	pub, err := btcec.ParsePubKey(info.PubKey, btcec.S256())
	if err != nil || !obj.Verify(pub) {
		return Permanent(20, "bad object signature")
	}

	if obj.Type == Proposal && s.chain != nil {
		confs, ok := s.chain.CollateralConfirmations(obj.CollateralTxid)
		if !ok {
			return Temporary("collateral transaction not visible yet")
		}
		if confs < minCollateralConfirmations {
			s.postponed[obj.Hash] = obj
			return Warn("collateral not yet buried, postponed")
		}
	}

	if obj.Type == Trigger {
		res := s.rate.CheckTrigger(*obj.MasternodeOutpoint, obj.CreatedTime, now,
			s.cfg.SuperblockCycleSeconds(), maxFuture, true)
		if !res.Allowed {
			return Warn("trigger creation rate exceeded")
		}
	}

	s.addObjectLocked(obj, now)
	return OK
}

// alreadyHaveLocked reports whether hash is already indexed anywhere, cs_governance held.
func (s *Store) alreadyHaveLocked(hash chainhash.Hash) bool {
	if _, ok := s.objects[hash]; ok {
		return true
	}
	if _, ok := s.postponed[hash]; ok {
		return true
	}
	if _, ok := s.masternodeOrphan[hash]; ok {
		return true
	}
	_, erased := s.erased[hash]
	return erased
}

// addObjectLocked indexes obj as accepted, records its creation against the
// rate limiter if it is a trigger, replays any votes parked waiting on it,
// and schedules an additional relay if it was created close to the future
// horizon (spec section 4.2's "additional_relay" reliability mechanism).
func (s *Store) addObjectLocked(obj *Object, now int64) {
	s.objects[obj.Hash] = obj
	if obj.Type == Trigger {
		s.rate.Record(*obj.MasternodeOutpoint, obj.CreatedTime)
	}

	grace := int64(s.cfg.ReliablePropagationTime / time.Second)
	maxFuture := int64(s.cfg.MaxFutureDeviation / time.Second)
	if obj.CreatedTime > now+maxFuture-grace {
		s.additionalRelay[obj.Hash] = now + grace
	}

	parentKey := obj.Hash.String()
	for _, voteHex := range s.orphanVoteSets.Get(parentKey) {
		vh, err := chainhash.NewHashFromStr(voteHex)
		if err != nil {
			continue
		}
		vote, ok := s.orphanVoteData[*vh]
		if !ok {
			continue
		}
		delete(s.orphanVoteData, *vh)
		s.processVoteLocked(vote, now)
	}
	s.orphanVoteSets.Remove(parentKey)
}

// HandleVote validates and, if accepted, records vote against its parent
// object, per spec section 4.2.
func (s *Store) HandleVote(vote *Vote, fromPeer string, now int64) Exception {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.requestedVotes[vote.Hash] {
		return Warn("vote was not requested")
	}
	delete(s.requestedVotes, vote.Hash)

	voteKey := vote.Hash.String()
	if s.voteToObject.Contains(voteKey) {
		return Warn("duplicate vote")
	}
	if s.invalidVotes.Contains(voteKey) {
		return Permanent(20, "known invalid vote")
	}

	maxFuture := int64(s.cfg.MaxFutureDeviation / time.Second)
	if vote.Timestamp > now+maxFuture {
		return Permanent(20, "vote timestamp too far in the future")
	}

	info, ok := s.registry.Lookup(vote.MasternodeOutpoint)
	if !ok {
		s.registry.AskForMN(fromPeer, vote.MasternodeOutpoint)
		return Warn("voting masternode unknown")
	}

	pub, err := btcec.ParsePubKey(info.PubKey, btcec.S256())
	if err != nil || !vote.Verify(pub) {
		s.invalidVotes.Add(voteKey, struct{}{})
		return Permanent(20, "bad vote signature")
	}

	return s.processVoteLocked(vote, now)
}

// processVoteLocked applies the update-min throttle and parent resolution,
// cs_governance held. It is also the re-entry point used to replay votes
// parked in orphanVoteData once their parent object arrives.
func (s *Store) processVoteLocked(vote *Vote, now int64) Exception {
	obj, ok := s.objects[vote.ParentObjectHash]
	if !ok {
		if _, erased := s.erased[vote.ParentObjectHash]; erased {
			return Warn("parent object erased")
		}
		// Parent is postponed/orphaned or simply unseen; either way park the
		// vote until addObjectLocked replays it.
		s.parkVoteLocked(vote)
		return Warn("parent object not yet known, parked")
	}

	key := fmt.Sprintf("%s:%s:%d", vote.MasternodeOutpoint.String(), vote.ParentObjectHash.String(), vote.Signal)
	if lastRaw, ok := s.lastVoteTime.Get(key); ok {
		last := lastRaw.(int64)
		if vote.Timestamp-last < int64(s.cfg.UpdateMin/time.Second) {
			return Warn("vote rate exceeds update-min")
		}
	}
	s.lastVoteTime.Add(key, vote.Timestamp)

	if !s.registry.RecordVote(vote.MasternodeOutpoint, vote.ParentObjectHash) {
		return Warn("superseded by a more recent vote")
	}

	obj.AddVote(vote)
	obj.Flags.Dirty = true
	s.voteToObject.Add(vote.Hash.String(), obj.Hash.String())
	return OK
}

// parkVoteLocked buffers vote against its (as yet unresolved) parent hash,
// bounded by MaxCacheSize so a flood of orphan votes cannot grow unbounded.
func (s *Store) parkVoteLocked(vote *Vote) {
	if len(s.orphanVoteData) >= s.cfg.MaxCacheSize {
		return
	}
	s.orphanVoteData[vote.Hash] = vote
	s.orphanVoteSets.Put(vote.ParentObjectHash.String(), vote.Hash.String())
}

// fundingQuorum is max(MIN_QUORUM, active_mn_count/10), the threshold used
// for funding and endorsed, and as the "no" threshold for valid.
func (s *Store) fundingQuorum() int {
	q := s.registry.ActiveCount() / 10
	if q < s.cfg.MinQuorum {
		q = s.cfg.MinQuorum
	}
	return q
}

// deleteQuorum is max(MIN_QUORUM, 2*active_mn_count/3), a supermajority
// threshold since deletion is destructive and latching.
func (s *Store) deleteQuorum() int {
	q := 2 * s.registry.ActiveCount() / 3
	if q < s.cfg.MinQuorum {
		q = s.cfg.MinQuorum
	}
	return q
}

// recomputeFlagsLocked refreshes obj's sentinel booleans from its current
// vote tally, cs_governance held (cs_object is taken internally by
// VotesBySignal).
func (s *Store) recomputeFlagsLocked(obj *Object, now int64) {
	fundingQuorum := s.fundingQuorum()
	deleteQuorum := s.deleteQuorum()

	yes, no, _ := obj.VotesBySignal(Funding)
	obj.Flags.Funding = yes-no >= fundingQuorum

	yes, no, _ = obj.VotesBySignal(ValidSignal)
	obj.Flags.Valid = no-yes < fundingQuorum

	yes, no, _ = obj.VotesBySignal(Delete)
	wasDelete := obj.Flags.Delete
	obj.Flags.Delete = yes-no >= deleteQuorum
	if obj.Flags.Delete && !wasDelete {
		obj.DeletionTime = now
	}

	yes, no, _ = obj.VotesBySignal(Endorsed)
	obj.Flags.Endorsed = yes-no >= fundingQuorum

	if obj.Type == Trigger {
		cycle := 2 * s.cfg.SuperblockCycleSeconds()
		expired := now > obj.CreatedTime+cycle
		if expired && !obj.Flags.Expired {
			obj.DeletionTime = now
		}
		obj.Flags.Expired = expired
	}

	obj.Flags.Dirty = false
}

// UpdateCachesAndClean runs the periodic maintenance pass of spec section
// 4.2/4.6: recompute sentinel flags, expire stale orphan/postponed entries,
// promote orphans whose signer has resolved, and tombstone objects whose
// delete/expired flag has held for DeletionDelay.
func (s *Store) UpdateCachesAndClean(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deletionDelay := int64(s.cfg.DeletionDelay / time.Second)
	for hash, obj := range s.objects {
		s.recomputeFlagsLocked(obj, now)
		if (obj.Flags.Delete || obj.Flags.Expired) && now-obj.DeletionTime >= deletionDelay {
			delete(s.objects, hash)
			s.erased[hash] = struct{}{}
			s.registry.RemoveObjectReferences(hash)
		}
	}

	for hash, entry := range s.masternodeOrphan {
		if s.registry.Has(*entry.obj.MasternodeOutpoint) {
			delete(s.masternodeOrphan, hash)
			s.addObjectLocked(entry.obj, now)
			continue
		}
		if now > entry.expiry {
			delete(s.masternodeOrphan, hash)
		}
	}

	for hash, obj := range s.postponed {
		if s.chain == nil {
			continue
		}
		confs, ok := s.chain.CollateralConfirmations(obj.CollateralTxid)
		if ok && confs >= minCollateralConfirmations {
			delete(s.postponed, hash)
			s.addObjectLocked(obj, now)
		}
	}
}

// DueForRelay returns, and clears, the set of objects scheduled for an
// additional reliability relay (spec section 4.2) whose deadline has
// elapsed.
func (s *Store) DueForRelay(now int64) []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Object
	for hash, at := range s.additionalRelay {
		if now < at {
			continue
		}
		if obj, ok := s.objects[hash]; ok {
			due = append(due, obj)
		}
		delete(s.additionalRelay, hash)
	}
	return due
}

// ClearMasternodeVotes removes every vote cast by outpoint from every
// accepted object, used when the host reports that a masternode has left
// the active set.
func (s *Store) ClearMasternodeVotes(outpoint wire.OutPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, obj := range s.objects {
		obj.ClearVotesFromMasternode(outpoint)
	}
}

// Count reports how many objects are currently accepted, used by metrics and
// persistence round-tripping.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// AllObjects returns a snapshot of every accepted (non-postponed,
// non-erased) object, for the gossip layer's periodic vote-request sweep.
func (s *Store) AllObjects() []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Object, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	return out
}
