// Package transport moves fixed-width payloads between the ranks of a static
// process group.
//
// Two implementations are provided: an in-process group connected by channels
// (NewLocalGroup), used by local runs and tests, and a TCP group joined from a
// list of peer addresses (ListenTCP). Both deliver whole payloads and expose a
// wildcard receive; sender identity travels inside the payload.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport is one rank's endpoint in a fixed-size process group.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Rank returns this endpoint's rank.
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Send delivers payload to dst. It blocks until the payload has been
	// handed off to the destination's inbox or the connection.
	Send(ctx context.Context, dst int, payload []byte) error
	// ReceiveAny blocks until a payload from any sender arrives.
	ReceiveAny(ctx context.Context) ([]byte, error)
	// Close releases the endpoint.
	Close() error
}

// ErrClosed is returned by operations on a closed endpoint.
var ErrClosed = errors.New("transport closed")

// Error is a send or receive failure. Transport errors are fatal: the
// protocol has no retry budget and a lost message stalls an ancestor.
type Error struct {
	Op   string // "send", "receive", "listen" or "dial"
	Rank int    // local rank
	Peer int    // remote rank, -1 when unknown
	Err  error
}

func (e *Error) Error() string {
	if e.Peer >= 0 {
		return fmt.Sprintf("transport %s rank %d -> %d: %v", e.Op, e.Rank, e.Peer, e.Err)
	}
	return fmt.Sprintf("transport %s rank %d: %v", e.Op, e.Rank, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func checkPeer(rank, size, dst int) error {
	if dst < 0 || dst >= size {
		return &Error{Op: "send", Rank: rank, Peer: dst, Err: fmt.Errorf("destination outside group of %d", size)}
	}
	return nil
}
