// Package mix implements the Mix Coordinator of spec section 4.1: the
// per-masternode finite-state-machine that assembles a CoinJoin transaction
// from mutually-mistrusting peers.
package mix

// Wire error and status codes exchanged on the mixing protocol, per spec
// section 7. They travel inside a STATUSUPDATE/REJECT payload rather than as
// Go errors, since a peer is only ever shown one of these, never a raw
// internal error.
const (
	ErrQueueFull    = "ERR_QUEUE_FULL"
	ErrMNList       = "ERR_MN_LIST"
	ErrRecent       = "ERR_RECENT"
	ErrInvalidOut   = "ERR_INVALID_OUT"
	ErrMNFees       = "ERR_MN_FEES"
	ErrMaximum      = "ERR_MAXIMUM"
	ErrEntriesFull  = "ERR_ENTRIES_FULL"
	ErrAlreadyHave  = "ERR_ALREADY_HAVE"
	ErrMode         = "ERR_MODE"
	ErrDenom        = "ERR_DENOM"
	ErrSession      = "ERR_SESSION"
	ErrInvalidTx    = "ERR_INVALID_TX"
	MsgNoErr        = "MSG_NOERR"
	MsgSuccess      = "MSG_SUCCESS"
	MsgEntriesAdded = "MSG_ENTRIES_ADDED"
)
