package common

import "fmt"

// ErrType enumerates the closed set of local/store error conditions raised by
// the engines. It mirrors the spec's distinction between conditions that are
// recoverable without penalty (NotFound, AlreadyHave, Obsolete, Expired) and
// conditions that indicate malformed input (Unparsable, BadSignature).
type ErrType uint32

const (
	// NotFound means the key is absent from the store queried.
	NotFound ErrType = iota
	// AlreadyHave means the key is already present in some primary store.
	AlreadyHave
	// Obsolete means the item is older than one already recorded.
	Obsolete
	// Expired means the item's TTL has elapsed.
	Expired
	// Unparsable means the data blob failed to decode.
	Unparsable
	// BadSignature means signature verification failed.
	BadSignature
	// UnknownMasternode means the outpoint does not resolve via the registry.
	UnknownMasternode
	// NotRequested means the hash was not solicited and is being dropped.
	NotRequested
)

var errTypeNames = []string{
	"Not Found",
	"Already Have",
	"Obsolete",
	"Expired",
	"Unparsable",
	"Bad Signature",
	"Unknown Masternode",
	"Not Requested",
}

func (t ErrType) String() string {
	if int(t) < len(errTypeNames) {
		return errTypeNames[t]
	}
	return "Unknown"
}

// StoreErr is the standard error value returned by store and cache lookups
// throughout the engines. dataType names the store ("objects", "queues",
// "rate_state", ...) and key is the offending identifier, usually a hex hash.
type StoreErr struct {
	dataType string
	errType  ErrType
	key      string
}

// NewStoreErr builds a StoreErr.
func NewStoreErr(dataType string, errType ErrType, key string) StoreErr {
	return StoreErr{dataType: dataType, errType: errType, key: key}
}

func (e StoreErr) Error() string {
	return fmt.Sprintf("%s[%s]: %s", e.dataType, e.key, e.errType)
}

// Type returns the underlying ErrType.
func (e StoreErr) Type() ErrType {
	return e.errType
}

// IsStore reports whether err is a StoreErr carrying the given ErrType.
func IsStore(err error, t ErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
