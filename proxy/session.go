package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"feslproxy/fesl"
)

// State is a session's lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateProxying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateProxying:
		return "proxying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// PacketEvent describes one decoded client record for external observers.
type PacketEvent struct {
	Session   string            `json:"session"`
	Direction string            `json:"direction"`
	ID        uint32            `json:"id"`
	Type      string            `json:"type"`
	TXN       string            `json:"txn"`
	Length    int               `json:"length"`
	Fields    map[string]string `json:"fields"`
	Rewritten bool              `json:"rewritten"`
}

// PacketTap receives decoded packets as they flow. It is an injected
// collaborator the engine only writes to; a nil tap disables publishing.
// Publish must not block.
type PacketTap interface {
	Publish(event PacketEvent)
}

// Session proxies one downstream connection to one upstream connection. It
// exclusively owns both for its lifetime and never outlives them. Each
// relay direction runs on its own goroutine; the downstream handle is read
// by one loop and written by the other (and vice versa for upstream), so
// the handles themselves need no locking, only the first-exit-wins join.
type Session struct {
	id         string
	downstream net.Conn
	upstream   net.Conn
	dialer     Upstream
	policy     RewritePolicy
	tap        PacketTap
	logger     *zap.Logger
	state      atomic.Int32
}

// NewSession wraps an already-handshaken downstream connection. The caller
// keeps no rights to the connection afterwards; the session closes it on
// every exit path.
func NewSession(downstream net.Conn, dialer Upstream, policy RewritePolicy, logger *zap.Logger, tap PacketTap) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		downstream: downstream,
		dialer:     dialer,
		policy:     policy,
		tap:        tap,
		logger: logger.With(
			zap.String("component", "proxy_session"),
			zap.String("session_id", id)),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug("session state changed",
			zap.String("from", prev.String()),
			zap.String("to", next.String()))
	}
}

// Run drives the session to completion: dial upstream, pump both directions,
// tear down when the first loop exits. It returns ErrTicketCaptured for a
// deliberate dump stop, a *HandshakeError if upstream never came up, the
// first relay fault otherwise, and nil for a clean disconnect.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	s.setState(StateConnecting)
	up, err := s.dialer.Dial(ctx)
	if err != nil {
		// Never leave a half-open session: the client side goes down
		// with the failed upstream attempt.
		s.setState(StateClosing)
		s.downstream.Close()
		return err
	}
	s.upstream = up
	s.setState(StateProxying)

	// Both loops report here; whichever finishes first ends the session.
	// The buffer lets the loser deliver its result after teardown without
	// anyone waiting on it.
	results := make(chan error, 2)
	go func() { results <- s.pumpClientToUpstream() }()
	go func() { results <- s.pumpUpstreamToClient() }()

	var first error
	select {
	case first = <-results:
	case <-ctx.Done():
		first = ctx.Err()
	}

	s.setState(StateClosing)
	// Force-close both halves. Reads have no deadlines, so this is the
	// only way to unblock the loop that is still alive.
	s.downstream.Close()
	s.upstream.Close()

	switch {
	case errors.Is(first, ErrTicketCaptured):
		s.logger.Info("session ended by deliberate ticket capture")
		return first
	case first == nil || errors.Is(first, io.EOF):
		s.logger.Info("session closed")
		return nil
	case errors.Is(first, context.Canceled):
		s.logger.Info("session cancelled")
		return nil
	default:
		s.logger.Warn("session closed after relay fault", zap.Error(first))
		return first
	}
}

func (s *Session) publish(pkt *fesl.Packet, wireLen int, rewritten bool) {
	if s.tap == nil {
		return
	}
	s.tap.Publish(PacketEvent{
		Session:   s.id,
		Direction: "client->upstream",
		ID:        pkt.ID,
		Type:      pkt.Type,
		TXN:       pkt.TXN(),
		Length:    wireLen,
		Fields:    pkt.Fields.Map(),
		Rewritten: rewritten,
	})
}
