package governance

import "fmt"

// ExceptionKind classifies the result of feeding an object or vote to the
// store, distinct from the mixing wire's common.Outcome: governance has no
// wire-visible error codes to echo back, only a misbehavior-scoring decision.
type ExceptionKind int

const (
	// None means the object or vote was accepted.
	None ExceptionKind = iota
	// Warning means the item was dropped without penalizing the peer, either
	// because it was unsolicited, a duplicate, or waiting on a prerequisite
	// (unknown masternode, missing parent, rate-limited).
	Warning
	// TemporaryError means the item was rejected for a reason that may
	// resolve itself (e.g. chain reorg affecting collateral depth) and
	// should not be treated as misbehavior.
	TemporaryError
	// PermanentError means the item is malformed or adversarial; Penalty
	// names the misbehavior score to apply to the originating peer.
	PermanentError
)

func (k ExceptionKind) String() string {
	switch k {
	case None:
		return "None"
	case Warning:
		return "Warning"
	case TemporaryError:
		return "TemporaryError"
	case PermanentError:
		return "PermanentError"
	default:
		return "Unknown"
	}
}

// Exception is returned by every Store ingestion operation.
type Exception struct {
	Kind    ExceptionKind
	Penalty int
	Reason  string
}

// OK is the canonical acceptance value.
var OK = Exception{Kind: None}

// Warn builds a Warning exception.
func Warn(reason string) Exception {
	return Exception{Kind: Warning, Reason: reason}
}

// Temporary builds a TemporaryError exception.
func Temporary(reason string) Exception {
	return Exception{Kind: TemporaryError, Reason: reason}
}

// Permanent builds a PermanentError exception carrying a misbehavior penalty.
func Permanent(penalty int, reason string) Exception {
	return Exception{Kind: PermanentError, Penalty: penalty, Reason: reason}
}

// IsOK reports whether e represents acceptance.
func (e Exception) IsOK() bool {
	return e.Kind == None
}

func (e Exception) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}
