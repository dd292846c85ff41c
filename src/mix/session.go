package mix

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/ChainCoinUnlimited/ChainCoin/src/queue"
)

// State is a Session's place in the state machine of spec section 4.1. The
// coordinator itself never writes the terminal Error/Success states; those
// belong to the client role observing CJCOMPLETE.
type State int

const (
	Idle State = iota
	QueueState
	AcceptingEntries
	Signing
	Error
	Success
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case QueueState:
		return "Queue"
	case AcceptingEntries:
		return "AcceptingEntries"
	case Signing:
		return "Signing"
	case Error:
		return "Error"
	case Success:
		return "Success"
	default:
		return "Unknown"
	}
}

// Participant is one peer admitted to the session, per spec section 3.
type Participant struct {
	Addr  string
	Denom int64
}

// Session is the Mix Coordinator's single active coordination state, per
// spec section 3. A coordinator runs at most one of these at a time; its
// fields are mutated only while the owning Coordinator holds cs_coinjoin.
type Session struct {
	ID        uint32
	DenomMask int64
	State     State

	Participants []Participant
	Entries      []*Entry

	FinalTx          *wire.MsgTx
	PartialSigs      map[string]map[int]wire.TxWitness
	ExpectedFinalTxHash string

	SessionStartTime int64
	ActiveQueue      *queue.Queue
}

// DenomCompatible reports whether d shares at least one bit with the
// session's denom mask, per spec section 3's compatibility rule
// "(a ^ b) != (a | b)", equivalently "a & b != 0".
func DenomCompatible(mask, d int64) bool {
	return mask&d != 0
}

// Ready reports session_ready: enough participants to leave Queue.
func (s *Session) Ready(minPoolInputs int) bool {
	return len(s.Participants) >= minPoolInputs
}

// Full reports session_full: at capacity.
func (s *Session) Full(maxPoolInputs int) bool {
	return len(s.Participants) >= maxPoolInputs
}

// FinalizeReady reports finalize_ready: either entries caught up to
// participants, or the accept window elapsed with at least the minimum.
func (s *Session) FinalizeReady(now int64, acceptTimeoutSeconds int64, minPoolInputs int) bool {
	if len(s.Entries) >= len(s.Participants) {
		return true
	}
	return now-s.SessionStartTime >= acceptTimeoutSeconds && len(s.Entries) >= minPoolInputs
}

// AddParticipant appends p, enforcing MAX_POOL_INPUTS by returning false
// once full.
func (s *Session) AddParticipant(p Participant, maxPoolInputs int) bool {
	if s.Full(maxPoolInputs) {
		return false
	}
	s.Participants = append(s.Participants, p)
	return true
}

// HasParticipant reports whether addr already joined this session.
func (s *Session) HasParticipant(addr string) bool {
	for _, p := range s.Participants {
		if p.Addr == addr {
			return true
		}
	}
	return false
}

// RemoveParticipant evicts addr, used when that peer disconnects, per spec
// section 4.5.
func (s *Session) RemoveParticipant(addr string) {
	kept := s.Participants[:0]
	for _, p := range s.Participants {
		if p.Addr != addr {
			kept = append(kept, p)
		}
	}
	s.Participants = kept
}

// HasEntryFrom reports whether addr already submitted a CJTXIN entry.
func (s *Session) HasEntryFrom(addr string) bool {
	for _, e := range s.Entries {
		if e.PeerAddr == addr {
			return true
		}
	}
	return false
}

// SetNull is total cancellation, per spec section 5: clears every
// participant/entry/queue structure and resets state to Idle.
func (s *Session) SetNull() {
	s.ID = 0
	s.DenomMask = 0
	s.State = Idle
	s.Participants = nil
	s.Entries = nil
	s.FinalTx = nil
	s.PartialSigs = nil
	s.ExpectedFinalTxHash = ""
	s.SessionStartTime = 0
	s.ActiveQueue = nil
}
