package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"feslproxy/fesl"
)

// pipeUpstream hands out a pre-built connection (or a failure) instead of
// dialing anything.
type pipeUpstream struct {
	conn net.Conn
	err  error
}

func (u *pipeUpstream) Dial(ctx context.Context) (net.Conn, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.conn, nil
}

// testHarness wires a session between two in-memory pipes: the test plays
// the game client on downClient and the real backend on upServer.
type testHarness struct {
	session    *Session
	downClient net.Conn
	upServer   net.Conn
	result     chan error
}

func startSession(t *testing.T, policy RewritePolicy) *testHarness {
	t.Helper()
	downClient, downProxy := net.Pipe()
	upProxy, upServer := net.Pipe()

	session := NewSession(downProxy, &pipeUpstream{conn: upProxy}, policy, zap.NewNop(), nil)
	h := &testHarness{
		session:    session,
		downClient: downClient,
		upServer:   upServer,
		result:     make(chan error, 1),
	}
	go func() { h.result <- session.Run(context.Background()) }()
	return h
}

func (h *testHarness) waitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		if got := h.session.State(); got != StateClosed {
			t.Errorf("final state = %v, want %v", got, StateClosed)
		}
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
		return nil
	}
}

func encodePacket(t *testing.T, id uint32, typeTag string, pairs [][2]string) []byte {
	t.Helper()
	p := &fesl.Packet{ID: id, Type: typeTag, Fields: fesl.NewFields()}
	for _, kv := range pairs {
		p.Fields.Set(kv[0], kv[1])
	}
	buf, err := fesl.Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return buf
}

func readForwarded(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("reading forwarded data: %v", err)
	}
	return buf[:n]
}

// TestTicketOverride checks the worked rewrite scenario: ticket and macAddr
// substituted, all other fields unchanged, length recomputed.
func TestTicketOverride(t *testing.T) {
	h := startSession(t, RewritePolicy{
		OverrideTicket:     "zzz",
		OverrideMacAddress: "ff:ff:ff:ff:ff:ff",
	})

	inbound := encodePacket(t, 7, "acct", [][2]string{
		{"TXN", "NuPS3Login"},
		{"ticket", "abc123"},
		{"macAddr", "00:11:22"},
	})
	go h.downClient.Write(inbound)

	forwarded := readForwarded(t, h.upServer)
	pkt := fesl.Decode(forwarded)
	if pkt == nil {
		t.Fatal("forwarded bytes do not decode")
	}
	if pkt.ID != 7 || pkt.Type != "acct" || pkt.TXN() != "NuPS3Login" {
		t.Errorf("header = (%d, %q, %q), want (7, \"acct\", \"NuPS3Login\")", pkt.ID, pkt.Type, pkt.TXN())
	}
	if ticket, _ := pkt.Fields.Get("ticket"); ticket != "zzz" {
		t.Errorf("ticket = %q, want %q", ticket, "zzz")
	}
	if mac, _ := pkt.Fields.Get("macAddr"); mac != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("macAddr = %q, want %q", mac, "ff:ff:ff:ff:ff:ff")
	}
	if int(pkt.Length) != len(forwarded) {
		t.Errorf("declared length = %d, wire length = %d", pkt.Length, len(forwarded))
	}

	h.downClient.Close()
	if err := h.waitClosed(t); err != nil {
		t.Errorf("Run = %v, want nil after clean disconnect", err)
	}
}

// TestDumpPrecedence checks that with both dump and override configured the
// dump path wins and the session aborts with the capture sentinel.
func TestDumpPrecedence(t *testing.T) {
	h := startSession(t, RewritePolicy{
		DumpClientTicket:   true,
		OverrideTicket:     "zzz",
		OverrideMacAddress: "ff:ff:ff:ff:ff:ff",
	})

	inbound := encodePacket(t, 3, "acct", [][2]string{
		{"TXN", "NuPS3Login"},
		{"ticket", "abc123"},
	})
	go h.downClient.Write(inbound)

	if err := h.waitClosed(t); !errors.Is(err, ErrTicketCaptured) {
		t.Errorf("Run = %v, want ErrTicketCaptured", err)
	}

	// Nothing may have been forwarded: the upstream side should observe
	// only the teardown.
	h.upServer.SetReadDeadline(time.Now().Add(time.Second))
	if n, err := h.upServer.Read(make([]byte, 64)); err != io.EOF {
		t.Errorf("upstream read = (%d, %v), want EOF with no data", n, err)
	}
}

// TestNonAuthPassThrough checks that a non-authentication packet is
// forwarded byte-identical even with an override configured.
func TestNonAuthPassThrough(t *testing.T) {
	h := startSession(t, RewritePolicy{OverrideTicket: "zzz"})

	inbound := encodePacket(t, 9, "fsys", [][2]string{
		{"TXN", "Ping"},
		{"payload", "x"},
	})
	go h.downClient.Write(inbound)

	forwarded := readForwarded(t, h.upServer)
	if string(forwarded) != string(inbound) {
		t.Errorf("forwarded bytes differ from input:\n got %x\nwant %x", forwarded, inbound)
	}

	h.downClient.Close()
	h.waitClosed(t)
}

// TestUnclassifiedPassThrough checks that data failing to decode is
// forwarded unmodified rather than treated as an error.
func TestUnclassifiedPassThrough(t *testing.T) {
	h := startSession(t, RewritePolicy{OverrideTicket: "zzz"})

	inbound := []byte("not a fesl record at all")
	go h.downClient.Write(inbound)

	forwarded := readForwarded(t, h.upServer)
	if string(forwarded) != string(inbound) {
		t.Errorf("forwarded = %q, want %q", forwarded, inbound)
	}

	h.downClient.Close()
	h.waitClosed(t)
}

// TestAuthPacketWithoutTicketUntouched checks that an auth transaction with
// no ticket field passes through even when an override is configured.
func TestAuthPacketWithoutTicketUntouched(t *testing.T) {
	h := startSession(t, RewritePolicy{OverrideTicket: "zzz"})

	inbound := encodePacket(t, 2, "acct", [][2]string{
		{"TXN", "NuPS3Login"},
		{"returnEncryptedInfo", "0"},
	})
	go h.downClient.Write(inbound)

	forwarded := readForwarded(t, h.upServer)
	if string(forwarded) != string(inbound) {
		t.Error("auth packet without ticket was modified")
	}

	h.downClient.Close()
	h.waitClosed(t)
}

// TestUpstreamToClientVerbatim checks the response direction relays without
// inspection.
func TestUpstreamToClientVerbatim(t *testing.T) {
	h := startSession(t, RewritePolicy{OverrideTicket: "zzz"})

	response := encodePacket(t, 7, "acct", [][2]string{
		{"TXN", "NuPS3Login"},
		{"ticket", "server-issued"},
	})
	go h.upServer.Write(response)

	got := readForwarded(t, h.downClient)
	if string(got) != string(response) {
		t.Error("server response was modified in flight")
	}

	h.upServer.Close()
	h.waitClosed(t)
}

// TestJoinSemantics checks first-exit-wins teardown: a client disconnect
// must force-terminate a mid-read upstream loop and close the session.
func TestJoinSemantics(t *testing.T) {
	h := startSession(t, RewritePolicy{})

	// Let the session settle into Proxying, then drop the client while
	// the upstream loop is blocked in a read with no data pending.
	time.Sleep(10 * time.Millisecond)
	h.downClient.Close()

	if err := h.waitClosed(t); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}

	// The upstream side must have been force-closed.
	h.upServer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := h.upServer.Read(make([]byte, 1)); err == nil {
		t.Error("upstream connection still open after session close")
	}
}

// TestHandshakeFailure checks a failed upstream dial aborts before Proxying
// and closes the downstream side.
func TestHandshakeFailure(t *testing.T) {
	downClient, downProxy := net.Pipe()
	dialErr := &HandshakeError{Addr: "fesl.example.com:18800", Err: errors.New("connection refused")}
	session := NewSession(downProxy, &pipeUpstream{err: dialErr}, RewritePolicy{}, zap.NewNop(), nil)

	err := session.Run(context.Background())
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Run = %v, want *HandshakeError", err)
	}
	if got := session.State(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}

	// Downstream must be closed, never half-open.
	downClient.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := downClient.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("downstream read = %v, want EOF", err)
	}
}

// zeroReadConn returns 0, nil from Read until the limit trips.
type zeroReadConn struct {
	net.Conn
}

func (c *zeroReadConn) Read(b []byte) (int, error) {
	return 0, nil
}

// TestSustainedZeroReadsDisconnect checks the spin-loop bound: a transport
// that keeps returning empty reads is eventually treated as disconnected.
func TestSustainedZeroReadsDisconnect(t *testing.T) {
	_, downProxy := net.Pipe()
	upProxy, _ := net.Pipe()

	session := NewSession(&zeroReadConn{Conn: downProxy}, &pipeUpstream{conn: upProxy}, RewritePolicy{}, zap.NewNop(), nil)

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session spun on zero-length reads instead of disconnecting")
	}
}

// tapRecorder collects published events.
type tapRecorder struct {
	events chan PacketEvent
}

func (r *tapRecorder) Publish(event PacketEvent) {
	select {
	case r.events <- event:
	default:
	}
}

// TestPacketTapSeesRewrite checks decoded packets reach the injected tap
// with the rewrite flag set appropriately.
func TestPacketTapSeesRewrite(t *testing.T) {
	downClient, downProxy := net.Pipe()
	upProxy, upServer := net.Pipe()
	tap := &tapRecorder{events: make(chan PacketEvent, 4)}

	session := NewSession(downProxy, &pipeUpstream{conn: upProxy},
		RewritePolicy{OverrideTicket: "zzz"}, zap.NewNop(), tap)
	go session.Run(context.Background())

	inbound := encodePacket(t, 7, "acct", [][2]string{
		{"TXN", "NuPS3Login"},
		{"ticket", "abc123"},
	})
	go downClient.Write(inbound)
	readForwarded(t, upServer)

	select {
	case event := <-tap.events:
		if !event.Rewritten {
			t.Error("event.Rewritten = false, want true")
		}
		if event.TXN != "NuPS3Login" || event.Type != "acct" {
			t.Errorf("event = %+v, want acct/NuPS3Login", event)
		}
		if event.Fields["ticket"] != "zzz" {
			t.Errorf("event ticket = %q, want %q", event.Fields["ticket"], "zzz")
		}
	case <-time.After(time.Second):
		t.Fatal("no packet event published")
	}

	downClient.Close()
}
