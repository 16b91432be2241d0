package proxy

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"go.uber.org/zap"

	"feslproxy/legacytls"
)

const defaultDialTimeout = 10 * time.Second

// Upstream opens the session's server-side connection. Exactly one dial per
// session, never retried, never pooled.
type Upstream interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TLSUpstream dials the real backend over TCP and negotiates TLS as a
// client, offering the legacy suites and routing trust decisions through a
// PeerAuthenticator.
type TLSUpstream struct {
	// Addr is the backend host:port.
	Addr string
	// ServerName overrides the SNI/verification name; defaults to the
	// host part of Addr.
	ServerName string
	// Auth decides what to do with the server's certificate and any
	// client-certificate demand.
	Auth legacytls.PeerAuthenticator
	// Timeout bounds the TCP dial; defaults to 10s.
	Timeout time.Duration

	Logger *zap.Logger
}

func (u *TLSUpstream) Dial(ctx context.Context) (net.Conn, error) {
	timeout := u.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	u.Logger.Info("connecting upstream", zap.String("addr", u.Addr))

	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", u.Addr)
	if err != nil {
		u.Logger.Error("upstream dial failed", zap.String("addr", u.Addr), zap.Error(err))
		return nil, &HandshakeError{Addr: u.Addr, Err: err}
	}

	serverName := u.ServerName
	if serverName == "" {
		if host, _, err := net.SplitHostPort(u.Addr); err == nil {
			serverName = host
		}
	}

	conn := tls.Client(raw, legacytls.ClientConfig(u.Auth, serverName))
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		u.Logger.Error("upstream TLS handshake failed", zap.String("addr", u.Addr), zap.Error(err))
		return nil, &HandshakeError{Addr: u.Addr, Err: err}
	}

	state := conn.ConnectionState()
	u.Logger.Info("upstream TLS established",
		zap.String("addr", u.Addr),
		zap.String("cipher_suite", legacytls.SuiteName(state.CipherSuite)),
		zap.Uint16("version", state.Version))
	return conn, nil
}
