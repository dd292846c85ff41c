package queue

import (
	"github.com/ChainCoinUnlimited/ChainCoin/src/host"
)

// Broadcaster relays and pushes signed Queue advertisements, per spec
// section 4.5. It holds no session state of its own, does not detect failed
// pushes and evicts no participant; session membership belongs to the Mix
// Coordinator.
type Broadcaster struct {
	conn     host.ConnectionManager
	minProto int
}

// NewBroadcaster creates a Broadcaster that relays through conn, gating
// relay to peers whose protocol version is at least minProto.
func NewBroadcaster(conn host.ConnectionManager, minProto int) *Broadcaster {
	return &Broadcaster{conn: conn, minProto: minProto}
}

// Relay pushes q to every connected peer.
func (b *Broadcaster) Relay(q *Queue) {
	b.conn.Relay(q, b.minProto)
}

// Push pushes q to a single peer.
func (b *Broadcaster) Push(q *Queue, addr string) {
	b.conn.Push(addr, q)
}

// PushToParticipants pushes a status-update queue (status > Open) only to
// the given participant addresses, per spec section 4.5: "Queues with
// status > Open ... are pushed only to session participants". It has no way
// to know if delivery actually failed (that is the transport's concern,
// out of scope here); callers that need eviction semantics should instead
// rely on the connection manager surfacing disconnects through other means.
func (b *Broadcaster) PushToParticipants(q *Queue, participants []string) {
	for _, addr := range participants {
		b.conn.Push(addr, q)
	}
}
