package main

import (
	"strings"

	"github.com/joho/godotenv"

	"feslproxy/proxy"
	"feslproxy/shared"
)

// Config is the proxy's process-lifetime configuration, sourced from the
// environment (optionally via a .env file). Values are read once at startup
// and treated as validated afterwards.
type Config struct {
	// ListenAddr is where the proxy accepts game client connections.
	ListenAddr string
	// UpstreamAddr is the real backend host:port.
	UpstreamAddr string
	// Hostname is the backend name the proxy impersonates; it becomes the
	// downstream certificate's subject and the upstream SNI.
	Hostname string

	Policy proxy.RewritePolicy

	// DNSListenAddr enables the DNS redirector when non-empty.
	DNSListenAddr string
	// DNSResolver handles lookups outside the spoofed zones.
	DNSResolver string
	// DNSProxyIP is the address handed out for spoofed names.
	DNSProxyIP string
	// DNSZones are the hostname suffixes to capture, comma separated in
	// the environment.
	DNSZones []string

	// TraceAddr enables the websocket packet-trace endpoint when non-empty.
	TraceAddr string
}

func loadConfig() *Config {
	// A .env file is a convenience, not a requirement.
	_ = godotenv.Load()

	hostname := shared.GetEnvOrDefault("FESL_HOSTNAME", "fesl.ea.com")

	var zones []string
	for _, zone := range strings.Split(shared.GetEnvOrDefault("DNS_ZONES", hostname), ",") {
		zone = strings.TrimSpace(zone)
		if zone != "" {
			zones = append(zones, zone)
		}
	}

	return &Config{
		ListenAddr:   shared.GetEnvOrDefault("FESL_LISTEN_ADDR", ":18800"),
		UpstreamAddr: shared.GetEnvOrDefault("FESL_UPSTREAM_ADDR", "fesl.ea.com:18800"),
		Hostname:     hostname,
		Policy: proxy.RewritePolicy{
			DumpClientTicket:   shared.GetEnvBoolOrDefault("DUMP_CLIENT_TICKET", false),
			OverrideTicket:     shared.GetEnvOrDefault("OVERRIDE_TICKET", ""),
			OverrideMacAddress: shared.GetEnvOrDefault("OVERRIDE_MAC_ADDRESS", ""),
		},
		DNSListenAddr: shared.GetEnvOrDefault("DNS_LISTEN_ADDR", ""),
		DNSResolver:   shared.GetEnvOrDefault("DNS_RESOLVER", "1.1.1.1:53"),
		DNSProxyIP:    shared.GetEnvOrDefault("DNS_PROXY_IP", "127.0.0.1"),
		DNSZones:      zones,
		TraceAddr:     shared.GetEnvOrDefault("TRACE_LISTEN_ADDR", ""),
	}
}
