package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"feslproxy/legacytls"
	"feslproxy/proxy"
	"feslproxy/shared"
)

// Gateway accepts game client connections, performs the downstream TLS
// handshake as the impersonated backend, and hands each live session to the
// proxy engine. When a session ends with a ticket capture, the whole run
// stops: that is the capture feature's contract.
type Gateway struct {
	config   *Config
	cert     tls.Certificate
	auth     legacytls.PeerAuthenticator
	tap      proxy.PacketTap
	logger   *shared.Logger
	listener net.Listener

	// captured is closed once to stop the run after a ticket dump.
	captured    chan struct{}
	captureOnce sync.Once
}

func NewGateway(config *Config, cert tls.Certificate, tap proxy.PacketTap, logger *shared.Logger) *Gateway {
	return &Gateway{
		config:   config,
		cert:     cert,
		auth:     legacytls.NewRelaxedTrust(logger.Logger),
		tap:      tap,
		logger:   logger,
		captured: make(chan struct{}),
	}
}

// Serve accepts connections until the listener is closed or ctx is done.
func (g *Gateway) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.config.ListenAddr)
	if err != nil {
		return err
	}
	g.listener = listener

	g.logger.Info("proxying FESL connections",
		zap.String("listen", g.config.ListenAddr),
		zap.String("upstream", g.config.UpstreamAddr),
		zap.String("hostname", g.config.Hostname),
		zap.Bool("dump_client_ticket", g.config.Policy.DumpClientTicket),
		zap.Bool("override_ticket", g.config.Policy.OverrideTicket != ""))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			g.logger.Error("accept failed", zap.Error(err))
			continue
		}
		go g.handle(ctx, conn)
	}
}

// Close stops accepting new connections.
func (g *Gateway) Close() {
	if g.listener != nil {
		g.listener.Close()
	}
}

// Captured is closed after a deliberate ticket capture.
func (g *Gateway) Captured() <-chan struct{} {
	return g.captured
}

func (g *Gateway) handle(ctx context.Context, raw net.Conn) {
	logger := g.logger.WithConnection(raw.RemoteAddr().String())
	logger.Info("client connected")

	// The engine's contract is a live, already-handshaken downstream
	// session, so the handshake happens here, not in the proxy package.
	conn := tls.Server(raw, legacytls.ServerConfig(g.cert))
	if err := conn.HandshakeContext(ctx); err != nil {
		logger.Warn("downstream TLS handshake failed", zap.Error(err))
		raw.Close()
		return
	}
	state := conn.ConnectionState()
	logger.Info("downstream TLS established",
		zap.String("cipher_suite", legacytls.SuiteName(state.CipherSuite)),
		zap.Uint16("version", state.Version))

	dialer := &proxy.TLSUpstream{
		Addr:       g.config.UpstreamAddr,
		ServerName: g.config.Hostname,
		Auth:       g.auth,
		Logger:     logger,
	}
	session := proxy.NewSession(conn, dialer, g.config.Policy, logger, g.tap)

	err := session.Run(ctx)
	if errors.Is(err, proxy.ErrTicketCaptured) {
		// One-shot diagnostic capture: stop the whole run.
		g.captureOnce.Do(func() { close(g.captured) })
	}
}
