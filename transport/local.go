package transport

import (
	"context"
	"sync"
)

// localGroup is the shared state of an in-process group.
type localGroup struct {
	inboxes []chan []byte
	done    []chan struct{}
	once    []sync.Once
}

// Local is an in-process Transport endpoint.
type Local struct {
	group *localGroup
	rank  int
}

// NewLocalGroup creates n connected in-process endpoints. Each inbox buffers up
// to n payloads, enough for every other rank to send once without blocking.
func NewLocalGroup(n int) []*Local {
	g := &localGroup{
		inboxes: make([]chan []byte, n),
		done:    make([]chan struct{}, n),
		once:    make([]sync.Once, n),
	}
	eps := make([]*Local, n)
	for i := range eps {
		g.inboxes[i] = make(chan []byte, n)
		g.done[i] = make(chan struct{})
		eps[i] = &Local{group: g, rank: i}
	}
	return eps
}

// Rank implements Transport.
func (l *Local) Rank() int { return l.rank }

// Size implements Transport.
func (l *Local) Size() int { return len(l.group.inboxes) }

// Send implements Transport. The payload is copied.
func (l *Local) Send(ctx context.Context, dst int, payload []byte) error {
	if err := checkPeer(l.rank, l.Size(), dst); err != nil {
		return err
	}
	msg := make([]byte, len(payload))
	copy(msg, payload)

	select {
	case <-l.group.done[l.rank]:
		return &Error{Op: "send", Rank: l.rank, Peer: dst, Err: ErrClosed}
	case <-l.group.done[dst]:
		return &Error{Op: "send", Rank: l.rank, Peer: dst, Err: ErrClosed}
	default:
	}

	select {
	case l.group.inboxes[dst] <- msg:
		return nil
	case <-l.group.done[dst]:
		return &Error{Op: "send", Rank: l.rank, Peer: dst, Err: ErrClosed}
	case <-ctx.Done():
		return &Error{Op: "send", Rank: l.rank, Peer: dst, Err: ctx.Err()}
	}
}

// ReceiveAny implements Transport.
func (l *Local) ReceiveAny(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-l.group.inboxes[l.rank]:
		return msg, nil
	case <-l.group.done[l.rank]:
		return nil, &Error{Op: "receive", Rank: l.rank, Peer: -1, Err: ErrClosed}
	case <-ctx.Done():
		return nil, &Error{Op: "receive", Rank: l.rank, Peer: -1, Err: ctx.Err()}
	}
}

// Close implements Transport. Payloads already delivered to other ranks stay
// in their inboxes.
func (l *Local) Close() error {
	l.group.once[l.rank].Do(func() { close(l.group.done[l.rank]) })
	return nil
}
