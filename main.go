package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"feslproxy/dnsspoof"
	"feslproxy/legacytls"
	"feslproxy/proxy"
	"feslproxy/shared"
	"feslproxy/trace"
)

func main() {
	logger, err := shared.NewLoggerFromEnv("fesl-proxy")
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	config := loadConfig()

	cert, err := legacytls.NewServerCertificate(config.Hostname)
	if err != nil {
		logger.Fatal("failed to generate server certificate", zap.Error(err))
	}
	logger.Info("generated impostor certificate", zap.String("hostname", config.Hostname))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tap proxy.PacketTap
	if config.TraceAddr != "" {
		hub := trace.NewHub(logger.Logger)
		tap = hub
		mux := http.NewServeMux()
		mux.Handle("/trace", hub)
		go func() {
			logger.Info("trace endpoint listening", zap.String("addr", config.TraceAddr))
			if err := http.ListenAndServe(config.TraceAddr, mux); err != nil {
				logger.Error("trace endpoint failed", zap.Error(err))
			}
		}()
	}

	if config.DNSListenAddr != "" {
		target := net.ParseIP(config.DNSProxyIP)
		if target == nil {
			logger.Fatal("invalid DNS_PROXY_IP", zap.String("value", config.DNSProxyIP))
		}
		redirector := dnsspoof.NewRedirector(target, config.DNSZones, config.DNSResolver, logger.Logger)
		defer redirector.Shutdown()
		go func() {
			if err := redirector.ListenAndServe(config.DNSListenAddr); err != nil {
				logger.Error("dns redirector failed", zap.Error(err))
			}
		}()
	}

	gateway := NewGateway(config, cert, tap, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		case <-gateway.Captured():
			// The capture itself was already logged at error level by
			// the session; this is the stop-the-run half of the deal.
			logger.Error("client ticket captured, stopping proxy")
		}
		cancel()
		gateway.Close()
	}()

	if err := gateway.Serve(ctx); err != nil {
		logger.Fatal("listener failed", zap.Error(err))
	}
	logger.Info("proxy stopped")
}
