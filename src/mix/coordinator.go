package mix

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/ChainCoinUnlimited/ChainCoin/src/common"
	"github.com/ChainCoinUnlimited/ChainCoin/src/config"
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
	"github.com/ChainCoinUnlimited/ChainCoin/src/queue"
)

// Coordinator runs the masternode role of spec section 4.1: at most one
// active Session at a time, admitting participants, collecting entries, and
// finalizing the joint transaction.
type Coordinator struct {
	mu sync.Mutex // cs_coinjoin

	cfg      *config.Config
	registry host.MasternodeRegistry
	conn     host.ConnectionManager
	chain    host.Chain
	rng      host.Rng
	payees   *queue.Broadcaster
	logger   *logrus.Entry

	self        wire.OutPoint
	priv        *btcec.PrivateKey
	payeeScript []byte

	session    *Session
	seenQueues map[wire.OutPoint]*queue.Queue
}

// NewCoordinator builds a Coordinator signing as self with priv, whose
// mixing fee output pays payeeScript.
func NewCoordinator(cfg *config.Config, registry host.MasternodeRegistry, conn host.ConnectionManager, chain host.Chain, rng host.Rng, broadcaster *queue.Broadcaster, self wire.OutPoint, priv *btcec.PrivateKey, payeeScript []byte, logger *logrus.Entry) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		registry:    registry,
		conn:        conn,
		chain:       chain,
		rng:         rng,
		payees:      broadcaster,
		logger:      logger,
		self:        self,
		priv:        priv,
		payeeScript: payeeScript,
		seenQueues:  make(map[wire.OutPoint]*queue.Queue),
	}
}

// newSessionID draws a random non-zero 20-bit session id, per spec section 3.
func (c *Coordinator) newSessionID() uint32 {
	const mask20 = 1<<20 - 1
	id := c.rng.RandomUint32(mask20)
	if id == 0 {
		id = 1
	}
	return id
}

// HandleAccept implements handle_accept: a peer's request to join or start a
// mixing session, per spec section 4.1.
func (c *Coordinator) HandleAccept(peer string, denom int64, now int64) common.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsValidDenominationMask(denom) {
		return common.Soft(ErrDenom)
	}

	if c.session == nil || c.session.State == Idle {
		c.startSessionLocked(now)
	} else if c.session.State != QueueState && c.session.State != AcceptingEntries {
		return common.Soft(ErrSession)
	} else if !DenomCompatible(c.session.DenomMask, denom) {
		return common.Soft(ErrDenom)
	} else if c.session.Full(c.cfg.MaxPoolInputs) {
		return common.Soft(ErrQueueFull)
	}

	if c.session.HasParticipant(peer) {
		return common.Soft(ErrAlreadyHave)
	}

	firstForSession := len(c.session.Participants) == 0
	c.session.DenomMask |= denom
	if !c.session.AddParticipant(Participant{Addr: peer, Denom: denom}, c.cfg.MaxPoolInputs) {
		return common.Soft(ErrQueueFull)
	}

	if firstForSession {
		c.signAndRelayQueueLocked(queue.Open, now)
	} else {
		c.pushParticipantQueueLocked(peer, now)
	}

	c.checkQueueCompleteLocked(now)
	return common.OkOutcome
}

// startSessionLocked creates a brand-new session in state Queue, cs_coinjoin
// held.
func (c *Coordinator) startSessionLocked(now int64) {
	c.session = &Session{
		ID:               c.newSessionID(),
		DenomMask:        0,
		State:            QueueState,
		SessionStartTime: now,
	}
}

// signAndRelayQueueLocked builds, signs, and relays a fresh Queue
// advertisement describing the session's current state.
func (c *Coordinator) signAndRelayQueueLocked(status queue.Status, now int64) {
	q := &queue.Queue{
		Denom:    c.session.DenomMask,
		Outpoint: c.self,
		Height:   c.chain.Height(),
		Status:   status,
	}
	if err := q.Sign(c.priv); err != nil {
		c.logger.WithError(err).Warn("failed to sign queue advertisement")
		return
	}
	c.session.ActiveQueue = q
	c.payees.Relay(q)
}

// pushParticipantQueueLocked pushes a status-update queue only to current
// participants, per spec section 4.5. It evicts no one: participants leave
// the session through OnPeerDisconnected.
func (c *Coordinator) pushParticipantQueueLocked(peer string, now int64) {
	if c.session.ActiveQueue == nil {
		c.signAndRelayQueueLocked(queue.Open, now)
		return
	}
	addrs := make([]string, len(c.session.Participants))
	for i, p := range c.session.Participants {
		addrs[i] = p.Addr
	}
	c.payees.PushToParticipants(c.session.ActiveQueue, addrs)
}

// HandleQueue implements handle_queue: ingest an advertisement relayed by
// another masternode, per spec section 4.1. It never touches this
// Coordinator's own session; known(peer) advertisements are tracked in
// seenQueues, keyed by the advertising masternode's outpoint since only the
// latest advertisement per masternode matters.
func (c *Coordinator) HandleQueue(peer string, q *queue.Queue, currentHeight int32) common.Outcome {
	if q.Expired(currentHeight, c.cfg.QueueTTLBlocks) {
		return common.Soft(ErrRecent)
	}
	if q.TooFarInFuture(currentHeight) {
		return common.Soft(ErrRecent)
	}

	info, ok := c.registry.Lookup(q.Outpoint)
	if !ok {
		c.registry.AskForMN(peer, q.Outpoint)
		return common.Soft(ErrMNList)
	}

	pub, err := btcec.ParsePubKey(info.PubKey, btcec.S256())
	if err != nil || !q.Verify(pub) {
		return common.Hard(ErrMNList, 20, "bad queue signature")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.seenQueues[q.Outpoint]; ok && prev.Denom == q.Denom && prev.Height == q.Height && prev.Status == q.Status {
		return common.Soft(ErrAlreadyHave)
	}
	if q.Status <= queue.Open {
		stored := q.Clone()
		c.seenQueues[q.Outpoint] = stored
		c.payees.Relay(q)
	}
	return common.OkOutcome
}

// HandleTxIn implements handle_tx_in: a participant's submitted partial
// transaction, per spec section 4.1.
func (c *Coordinator) HandleTxIn(peer string, entry *Entry, now int64) common.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.State != AcceptingEntries {
		return common.Soft(ErrMode)
	}
	if !c.session.HasParticipant(peer) {
		return common.Soft(ErrSession)
	}
	if c.session.HasEntryFrom(peer) {
		return common.Soft(ErrAlreadyHave)
	}
	if entry.inputCount() > c.cfg.EntryMax {
		return common.Soft(ErrMaximum)
	}
	if entry.outputCount() > 3*c.cfg.EntryMax {
		return common.Soft(ErrMaximum)
	}

	haveFee := false
	for _, out := range entry.Outputs {
		if !IsValidDenomination(out.Value) {
			return common.Soft(ErrInvalidOut)
		}
		if string(out.PkScript) == string(c.payeeScript) && out.Value >= requiredFee(entry.inputCount()) {
			haveFee = true
		}
	}
	if !haveFee {
		return common.Soft(ErrMNFees)
	}

	c.session.Entries = append(c.session.Entries, entry)
	c.relayStatusLocked(MsgEntriesAdded)
	c.checkPoolLocked(now)
	return common.Outcome{Kind: common.Ok, Code: MsgEntriesAdded}
}

// relayStatusLocked pushes a CJSTATUSUPDATE-equivalent to every current
// participant. It does not learn whether a push was delivered and evicts no
// one.
func (c *Coordinator) relayStatusLocked(code string) {
	if c.session == nil {
		return
	}
	for _, p := range c.session.Participants {
		c.conn.Push(p.Addr, statusUpdate{
			SessionID:   c.session.ID,
			State:       c.session.State,
			EntryCount:  len(c.session.Entries),
			StatusCode:  code,
		})
	}
}

// statusUpdate is the CJSTATUSUPDATE payload of spec section 6.
type statusUpdate struct {
	SessionID  uint32
	State      State
	EntryCount int
	StatusCode string
}

// checkQueueCompleteLocked advances Queue -> AcceptingEntries once enough
// participants have joined, per spec section 4.6's check_for_complete_queue.
func (c *Coordinator) checkQueueCompleteLocked(now int64) {
	if c.session == nil || c.session.State != QueueState {
		return
	}
	if c.session.Ready(c.cfg.MinPoolInputs) {
		c.session.State = AcceptingEntries
		c.session.SessionStartTime = now
		c.signAndRelayQueueLocked(queue.Ready, now)
	}
}

// checkPoolLocked advances AcceptingEntries -> Signing once finalize_ready
// holds, per spec section 4.6's check_pool.
func (c *Coordinator) checkPoolLocked(now int64) {
	if c.session == nil || c.session.State != AcceptingEntries {
		return
	}
	if !c.session.FinalizeReady(now, int64(c.cfg.AcceptTimeout.Seconds()), c.cfg.MinPoolInputs) {
		return
	}
	c.finalizeLocked(now)
}

// finalizeLocked builds, shuffles, and broadcasts the joint transaction,
// advancing the session to Signing, per spec section 4.1's Finalization.
func (c *Coordinator) finalizeLocked(now int64) {
	var inputs []wire.TxIn
	var outputs []wire.TxOut
	for _, e := range c.session.Entries {
		inputs = append(inputs, e.strippedInputs()...)
		outputs = append(outputs, e.Outputs...)
	}

	c.rng.Shuffle(len(inputs), func(i, j int) { inputs[i], inputs[j] = inputs[j], inputs[i] })
	c.rng.Shuffle(len(outputs), func(i, j int) { outputs[i], outputs[j] = outputs[j], outputs[i] })

	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range inputs {
		in := inputs[i]
		tx.AddTxIn(&in)
	}
	for i := range outputs {
		out := outputs[i]
		tx.AddTxOut(&out)
	}

	c.session.FinalTx = tx
	c.session.ExpectedFinalTxHash = tx.TxHash().String()
	c.session.PartialSigs = make(map[string]map[int]wire.TxWitness)
	c.session.State = Signing
	c.session.SessionStartTime = now

	for _, p := range c.session.Participants {
		c.conn.Push(p.Addr, finalTxEnvelope{SessionID: c.session.ID, Tx: tx})
	}
}

// finalTxEnvelope is the CJFINALTX payload of spec section 6.
type finalTxEnvelope struct {
	SessionID uint32
	Tx        *wire.MsgTx
}

// HandleSignFinal implements handle_sign_final: a participant's returned
// partial signature set, per spec section 4.1.
func (c *Coordinator) HandleSignFinal(peer string, expectedTxHash string, sigs map[int]wire.TxWitness, now int64) common.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.State != Signing {
		return common.Soft(ErrSession)
	}
	if expectedTxHash != c.session.ExpectedFinalTxHash {
		return common.Soft(ErrSession)
	}
	if !c.session.HasParticipant(peer) {
		return common.Soft(ErrSession)
	}

	c.session.PartialSigs[peer] = sigs
	if err := c.mergeSignaturesLocked(); err != nil {
		c.logger.WithError(err).Warn("final PSBT merge failed, aborting session")
		c.abortLocked(ErrInvalidTx)
		return common.Hard(ErrInvalidTx, 0, err.Error())
	}

	if !c.allSignedLocked() {
		return common.OkOutcome
	}

	return c.commitLocked(now)
}

// mergeSignaturesLocked applies every collected per-input witness onto
// FinalTx, failing if two participants claim the same input.
func (c *Coordinator) mergeSignaturesLocked() error {
	claimed := make(map[int]string)
	for peer, sigs := range c.session.PartialSigs {
		for idx, wit := range sigs {
			if idx < 0 || idx >= len(c.session.FinalTx.TxIn) {
				return fmt.Errorf("signature for out-of-range input %d", idx)
			}
			if owner, ok := claimed[idx]; ok && owner != peer {
				return fmt.Errorf("input %d claimed by both %s and %s", idx, owner, peer)
			}
			claimed[idx] = peer
			c.session.FinalTx.TxIn[idx].Witness = wit
		}
	}
	return nil
}

// allSignedLocked reports whether every input now carries a witness.
func (c *Coordinator) allSignedLocked() bool {
	for _, in := range c.session.FinalTx.TxIn {
		if len(in.Witness) == 0 {
			return false
		}
	}
	return true
}

// commitLocked submits the fully-signed transaction to the mempool and
// notifies participants, per spec section 4.1's Commit.
func (c *Coordinator) commitLocked(now int64) common.Outcome {
	tx := c.session.FinalTx
	sessionID := c.session.ID

	if err := c.chain.MempoolAccept(tx); err != nil {
		c.logger.WithError(err).Warn("mempool rejected finalized mixing transaction")
		for _, p := range c.session.Participants {
			c.conn.Push(p.Addr, completeEnvelope{SessionID: sessionID, Code: ErrInvalidTx})
		}
		c.resetLocked(now)
		return common.Hard(ErrInvalidTx, 0, err.Error())
	}

	c.conn.Relay(invAnnouncement{Hash: tx.TxHash()}, c.cfg.MinProtocolVersion)
	for _, p := range c.session.Participants {
		c.conn.Push(p.Addr, completeEnvelope{SessionID: sessionID, Code: MsgSuccess})
	}
	c.resetLocked(now)
	return common.Outcome{Kind: common.Ok, Code: MsgSuccess}
}

// completeEnvelope is the CJCOMPLETE payload of spec section 6.
type completeEnvelope struct {
	SessionID uint32
	Code      string
}

// invAnnouncement is the INV payload announcing the committed transaction.
type invAnnouncement struct {
	Hash chainhash.Hash
}

// abortLocked resets the session on a fatal signing failure, notifying every
// participant with Rejected, per spec section 4.1's handle_sign_final.
func (c *Coordinator) abortLocked(code string) {
	for _, p := range c.session.Participants {
		c.conn.Push(p.Addr, completeEnvelope{SessionID: c.session.ID, Code: code})
	}
	c.session.SetNull()
}

// resetLocked returns the coordinator to Idle, broadcasting Closed on the
// active queue if one exists.
func (c *Coordinator) resetLocked(now int64) {
	if c.session != nil && c.session.ActiveQueue != nil {
		closed := c.session.ActiveQueue.Clone()
		closed.Status = queue.Closed
		if err := closed.Sign(c.priv); err == nil {
			c.payees.Relay(closed)
		}
	}
	if c.session != nil {
		c.session.SetNull()
	}
}

// CheckTimeout implements check_timeout: resets a session whose Queue has
// expired or whose Signing/AcceptingEntries window has elapsed, per spec
// section 4.1's Timeouts and section 4.6's Scheduler Hook.
func (c *Coordinator) CheckTimeout(now int64, currentHeight int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}

	switch c.session.State {
	case QueueState:
		if c.session.ActiveQueue != nil && c.session.ActiveQueue.Expired(currentHeight, c.cfg.QueueTTLBlocks) {
			c.resetLocked(now)
		}
	case AcceptingEntries:
		if now-c.session.SessionStartTime >= int64(c.cfg.AcceptTimeout.Seconds()) {
			if len(c.session.Entries) >= c.cfg.MinPoolInputs {
				c.finalizeLocked(now)
			} else {
				c.resetLocked(now)
			}
		}
	case Signing:
		if now-c.session.SessionStartTime >= int64(c.cfg.SigningTimeout.Seconds()) {
			c.resetLocked(now)
		}
	}
}

// CheckPool re-runs check_pool from the Scheduler Hook's on_new_tip path.
func (c *Coordinator) CheckPool(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPoolLocked(now)
}

// CheckQueueComplete re-runs check_for_complete_queue from the Scheduler
// Hook's on_new_tip path.
func (c *Coordinator) CheckQueueComplete(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkQueueCompleteLocked(now)
}

// OnPeerDisconnected evicts addr from the active session, resetting without
// penalty if no participants remain, per spec section 4.5.
func (c *Coordinator) OnPeerDisconnected(addr string, now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}
	c.session.RemoveParticipant(addr)
	if len(c.session.Participants) == 0 {
		c.resetLocked(now)
		return
	}
	if c.session.State == AcceptingEntries && len(c.session.Entries) >= c.cfg.MinPoolInputs {
		c.checkPoolLocked(now)
	}
}

// State returns the coordinator's current session state, Idle if none.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Idle
	}
	return c.session.State
}
