package mix

import (
	"github.com/btcsuite/btcd/wire"
)

// Entry is one participant's contribution to the joint transaction: a set of
// inputs (signature data stripped, added back at signing time) and outputs
// of the session's agreed denomination.
type Entry struct {
	PeerAddr string
	Inputs   []wire.TxIn
	Outputs  []wire.TxOut
}

// inputCount and outputCount bound an entry's size against EntryMax, per
// spec section 4.1's handle_tx_in.
func (e *Entry) inputCount() int  { return len(e.Inputs) }
func (e *Entry) outputCount() int { return len(e.Outputs) }

// strippedInputs returns a's inputs with any inherited SignatureScript
// cleared, matching the "stripping signature data from inputs" step of
// finalization.
func (e *Entry) strippedInputs() []wire.TxIn {
	out := make([]wire.TxIn, len(e.Inputs))
	for i, in := range e.Inputs {
		out[i] = in
		out[i].SignatureScript = nil
		out[i].Witness = nil
	}
	return out
}
