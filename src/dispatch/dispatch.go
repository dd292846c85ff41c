// Package dispatch implements the wire-command fan-out of spec section 6:
// decoding the tagged union of mixing and governance messages into calls on
// the Mix Coordinator, Governance Store, and Gossip Layer, the way babble's
// node package type-switches an incoming net.RPC.Command onto its core.
package dispatch

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	bloomfilter "github.com/holiman/bloomfilter/v2"
	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/common"
	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/governance"
	"github.com/ChainCoinUnlimited/ChainCoin/src/gossip"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/mix"
	"github.com/ChainCoinUnlimited/ChainCoin/src/queue"
)

// CJAccept is the CJACCEPT payload: a client asking to join the mixing pool
// at a given denomination.
type CJAccept struct {
	Denom int64
}

// CJQueue is the CJQUEUE payload: a masternode's signed queue advertisement,
// forwarded to the Mix Coordinator for session bookkeeping as well as to the
// queue broadcaster for relay.
type CJQueue struct {
	Queue *queue.Queue
}

// CJTxIn is the CJTXIN payload: one participant's inputs and outputs.
type CJTxIn struct {
	Entry *mix.Entry
}

// CJSignFinalTx is the CJSIGNFINALTX payload: a participant's signatures over
// the finalized joint transaction.
type CJSignFinalTx struct {
	ExpectedTxHash string
	Sigs           map[int]wire.TxWitness
}

// MNGovernanceSync is the MNGOVERNANCESYNC payload: a zero Hash requests a
// full inventory dump (sync_all); a non-zero Hash requests votes on that one
// object, filtered by Filter's bloom of votes the peer already holds
// (sync_one).
type MNGovernanceSync struct {
	Hash   chainhash.Hash
	Filter *bloomfilter.Filter
}

// MNGovernanceObject is the MNGOVERNANCEOBJECT payload carrying one
// governance object.
type MNGovernanceObject struct {
	Object *governance.Object
}

// MNGovernanceObjectVote is the MNGOVERNANCEOBJECTVOTE payload carrying one
// vote.
type MNGovernanceObjectVote struct {
	Vote *governance.Vote
}

// Dispatcher type-switches an inbound command from peer onto the engines,
// mirroring babble's node.processRPC.
type Dispatcher struct {
	cfg    *config.Config
	mix    *mix.Coordinator
	gov    *governance.Store
	gossip *gossip.Layer
	queue  *queue.Broadcaster
	conn   host.ConnectionManager
	logger *logrus.Entry
}

// New builds a Dispatcher that routes decoded commands to the given engines.
func New(cfg *config.Config, mixCoord *mix.Coordinator, gov *governance.Store, gossipLayer *gossip.Layer, broadcaster *queue.Broadcaster, conn host.ConnectionManager, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		mix:    mixCoord,
		gov:    gov,
		gossip: gossipLayer,
		queue:  broadcaster,
		conn:   conn,
		logger: logger,
	}
}

// Dispatch routes cmd, received from peer at time now with the chain at
// currentHeight, onto the appropriate engine. An unrecognized command is
// logged and reported back as an error, matching processRPC's default case.
func (d *Dispatcher) Dispatch(peer string, cmd interface{}, now int64, currentHeight int32) error {
	switch m := cmd.(type) {
	case *CJAccept:
		return d.handleAccept(peer, m, now)
	case *CJQueue:
		return d.handleQueue(peer, m, currentHeight)
	case *CJTxIn:
		return d.handleTxIn(peer, m, now)
	case *CJSignFinalTx:
		return d.handleSignFinal(peer, m, now)
	case *MNGovernanceSync:
		return d.handleGovernanceSync(peer, m)
	case *MNGovernanceObject:
		return d.handleGovernanceObject(peer, m, now)
	case *MNGovernanceObjectVote:
		return d.handleGovernanceVote(peer, m, now)
	default:
		d.logger.WithField("cmd", cmd).Error("unrecognized wire command")
		return fmt.Errorf("dispatch: unrecognized command %T", cmd)
	}
}

func (d *Dispatcher) handleAccept(peer string, m *CJAccept, now int64) error {
	outcome := d.mix.HandleAccept(peer, m.Denom, now)
	return d.applyOutcome(peer, "CJACCEPT", outcome)
}

func (d *Dispatcher) handleQueue(peer string, m *CJQueue, currentHeight int32) error {
	outcome := d.mix.HandleQueue(peer, m.Queue, currentHeight)
	if err := d.applyOutcome(peer, "CJQUEUE", outcome); err != nil {
		return err
	}
	if outcome.Kind == common.Ok {
		d.queue.Relay(m.Queue)
	}
	return nil
}

func (d *Dispatcher) handleTxIn(peer string, m *CJTxIn, now int64) error {
	outcome := d.mix.HandleTxIn(peer, m.Entry, now)
	return d.applyOutcome(peer, "CJTXIN", outcome)
}

func (d *Dispatcher) handleSignFinal(peer string, m *CJSignFinalTx, now int64) error {
	outcome := d.mix.HandleSignFinal(peer, m.ExpectedTxHash, m.Sigs, now)
	return d.applyOutcome(peer, "CJSIGNFINALTX", outcome)
}

func (d *Dispatcher) handleGovernanceSync(peer string, m *MNGovernanceSync) error {
	var zero chainhash.Hash
	if m.Hash == zero {
		objects := d.gov.AllObjects()
		hashes := make([]chainhash.Hash, 0, len(objects))
		voteCount := 0
		for _, obj := range objects {
			hashes = append(hashes, obj.Hash)
			voteCount += len(obj.VoteHashes())
		}
		d.gossip.SyncAll(peer, hashes, voteCount)
		return nil
	}

	obj, ok := d.gov.Get(m.Hash)
	if !ok {
		d.logger.WithFields(logrus.Fields{"peer": peer, "hash": m.Hash}).Debug("MNGOVERNANCESYNC for unknown object")
		return nil
	}
	d.gossip.SyncOne(peer, obj, m.Filter)
	return nil
}

func (d *Dispatcher) handleGovernanceObject(peer string, m *MNGovernanceObject, now int64) error {
	exc := d.gov.HandleObject(m.Object, peer, now)
	return d.applyException(peer, "MNGOVERNANCEOBJECT", exc)
}

func (d *Dispatcher) handleGovernanceVote(peer string, m *MNGovernanceObjectVote, now int64) error {
	exc := d.gov.HandleVote(m.Vote, peer, now)
	return d.applyException(peer, "MNGOVERNANCEOBJECTVOTE", exc)
}

// applyOutcome logs a common.Outcome and turns a hard failure into a
// misbehavior penalty against peer, per spec section 5's "non-error rejects
// surface as common.Outcome" convention.
func (d *Dispatcher) applyOutcome(peer, label string, outcome common.Outcome) error {
	d.logger.WithFields(logrus.Fields{
		"peer":   peer,
		"kind":   outcome.Kind,
		"code":   outcome.Code,
		"reason": outcome.Reason,
	}).Debug("process " + label)

	if outcome.Kind == common.HardFail && outcome.Penalty > 0 {
		d.conn.Misbehaving(peer, outcome.Penalty, outcome.Reason)
	}
	return nil
}

// applyException logs a governance.ExceptionKind and turns a permanent error
// into a misbehavior penalty.
func (d *Dispatcher) applyException(peer, label string, exc governance.Exception) error {
	d.logger.WithFields(logrus.Fields{
		"peer":   peer,
		"kind":   exc.Kind,
		"reason": exc.Reason,
	}).Debug("process " + label)

	if exc.Kind == governance.PermanentError {
		d.conn.Misbehaving(peer, exc.Penalty, exc.Reason)
	}
	return nil
}
