package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultDialTimeout bounds how long Send keeps retrying to reach a peer
	// that is not listening yet.
	DefaultDialTimeout = 30 * time.Second
	// DefaultMaxPayload bounds the size of a single received frame.
	DefaultMaxPayload = 1 << 20
)

// TCPConfig describes one rank's membership in a TCP process group.
type TCPConfig struct {
	// Rank is this process's rank; Peers[Rank] is the address it listens on.
	Rank int
	// Peers holds one host:port per rank.
	Peers []string
	// DialTimeout is the total retry budget for connecting to a peer.
	DialTimeout time.Duration
	// MaxPayload rejects frames larger than this many bytes.
	MaxPayload int
	// Logger receives connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *TCPConfig) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer
}

// TCP is a Transport endpoint backed by one listener and one outbound
// connection per destination. Frames are prefixed with their length as a
// little-endian uint32.
type TCP struct {
	cfg    TCPConfig
	ln     net.Listener
	logger *slog.Logger

	inbox chan []byte
	peers []peerConn

	mu       sync.Mutex
	accepted map[net.Conn]struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ListenTCP listens on cfg.Peers[cfg.Rank] and joins the group.
func ListenTCP(ctx context.Context, cfg TCPConfig) (*TCP, error) {
	if cfg.Rank < 0 || cfg.Rank >= len(cfg.Peers) {
		return nil, &Error{Op: "listen", Rank: cfg.Rank, Peer: -1, Err: fmt.Errorf("rank outside peer list of %d", len(cfg.Peers))}
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Peers[cfg.Rank])
	if err != nil {
		return nil, &Error{Op: "listen", Rank: cfg.Rank, Peer: -1, Err: err}
	}
	return NewTCP(ln, cfg)
}

// NewTCP joins the group using an existing listener. The endpoint owns ln.
func NewTCP(ln net.Listener, cfg TCPConfig) (*TCP, error) {
	if cfg.Rank < 0 || cfg.Rank >= len(cfg.Peers) {
		_ = ln.Close()
		return nil, &Error{Op: "listen", Rank: cfg.Rank, Peer: -1, Err: fmt.Errorf("rank outside peer list of %d", len(cfg.Peers))}
	}
	cfg.applyDefaults()

	t := &TCP{
		cfg:      cfg,
		ln:       ln,
		logger:   cfg.Logger.With("rank", cfg.Rank),
		inbox:    make(chan []byte, len(cfg.Peers)),
		peers:    make([]peerConn, len(cfg.Peers)),
		accepted: make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// Addr returns the listener's address.
func (t *TCP) Addr() net.Addr { return t.ln.Addr() }

// Rank implements Transport.
func (t *TCP) Rank() int { return t.cfg.Rank }

// Size implements Transport.
func (t *TCP) Size() int { return len(t.cfg.Peers) }

// Send implements Transport. A write failure drops the cached connection and
// is returned as an *Error; Send does not resend.
func (t *TCP) Send(ctx context.Context, dst int, payload []byte) error {
	if err := checkPeer(t.cfg.Rank, t.Size(), dst); err != nil {
		return err
	}
	if len(payload) > t.cfg.MaxPayload {
		return &Error{Op: "send", Rank: t.cfg.Rank, Peer: dst, Err: fmt.Errorf("payload of %d bytes exceeds limit %d", len(payload), t.cfg.MaxPayload)}
	}
	if dst == t.cfg.Rank {
		return t.deliverLocal(ctx, payload)
	}

	p := &t.peers[dst]
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := t.dial(ctx, dst)
		if err != nil {
			return &Error{Op: "dial", Rank: t.cfg.Rank, Peer: dst, Err: err}
		}
		p.conn = conn
		p.w = bufio.NewWriter(conn)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(deadline)
	} else {
		_ = p.conn.SetWriteDeadline(time.Time{})
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	_, err := p.w.Write(hdr[:])
	if err == nil {
		_, err = p.w.Write(payload)
	}
	if err == nil {
		err = p.w.Flush()
	}
	if err != nil {
		_ = p.conn.Close()
		p.conn, p.w = nil, nil
		return &Error{Op: "send", Rank: t.cfg.Rank, Peer: dst, Err: err}
	}
	return nil
}

// ReceiveAny implements Transport.
func (t *TCP) ReceiveAny(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.inbox:
		return msg, nil
	case <-t.done:
		return nil, &Error{Op: "receive", Rank: t.cfg.Rank, Peer: -1, Err: ErrClosed}
	case <-ctx.Done():
		return nil, &Error{Op: "receive", Rank: t.cfg.Rank, Peer: -1, Err: ctx.Err()}
	}
}

// Close implements Transport. Outbound data already flushed is delivered by
// the kernel after Close returns.
func (t *TCP) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.ln.Close()

		for i := range t.peers {
			p := &t.peers[i]
			p.mu.Lock()
			if p.conn != nil {
				_ = p.conn.Close()
				p.conn, p.w = nil, nil
			}
			p.mu.Unlock()
		}

		t.mu.Lock()
		for c := range t.accepted {
			_ = c.Close()
		}
		t.mu.Unlock()

		t.wg.Wait()
	})
	return err
}

func (t *TCP) dial(ctx context.Context, dst int) (net.Conn, error) {
	addr := t.cfg.Peers[dst]
	attempt := 0
	return backoff.Retry(ctx, func() (net.Conn, error) {
		attempt++
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			t.logger.Debug("dial failed, retrying", "peer", dst, "addr", addr, "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(t.cfg.DialTimeout),
	)
}

func (t *TCP) deliverLocal(ctx context.Context, payload []byte) error {
	msg := make([]byte, len(payload))
	copy(msg, payload)
	select {
	case t.inbox <- msg:
		return nil
	case <-t.done:
		return &Error{Op: "send", Rank: t.cfg.Rank, Peer: t.cfg.Rank, Err: ErrClosed}
	case <-ctx.Done():
		return &Error{Op: "send", Rank: t.cfg.Rank, Peer: t.cfg.Rank, Err: ctx.Err()}
	}
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error("accept failed", "error", err)
			}
			return
		}

		t.mu.Lock()
		if isClosed(t.done) {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.accepted[conn] = struct{}{}
		t.mu.Unlock()

		t.wg.Add(1)
		go t.readLoop(conn)
	}
}

func (t *TCP) readLoop(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.accepted, conn)
		t.mu.Unlock()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if !errors.Is(err, io.EOF) && !isClosed(t.done) {
				t.logger.Warn("connection read failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
		n := int(binary.LittleEndian.Uint32(hdr[:]))
		if n > t.cfg.MaxPayload {
			t.logger.Error("dropping connection with oversized frame", "remote", conn.RemoteAddr().String(), "size", n)
			return
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			if !isClosed(t.done) {
				t.logger.Warn("truncated frame", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		select {
		case t.inbox <- msg:
		case <-t.done:
			return
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
