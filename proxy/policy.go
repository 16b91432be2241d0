// Package proxy contains the session engine: it takes an already-handshaken
// downstream TLS connection, opens its own TLS connection to the real
// backend, and pumps application records between the two, rewriting
// authentication tickets per policy on the way up.
package proxy

// RewritePolicy is the configuration-driven decision of whether to capture
// or substitute ticket fields in flight. It is loaded once at startup,
// never mutated, and shared across concurrent sessions without locking.
type RewritePolicy struct {
	// DumpClientTicket surfaces the first observed client ticket at the
	// highest log severity and deliberately ends the run. Diagnostic
	// capture, not normal operation. Takes precedence over overrides.
	DumpClientTicket bool

	// OverrideTicket, when non-empty, replaces the client's ticket field
	// on authentication transactions before forwarding.
	OverrideTicket string

	// OverrideMacAddress, when non-empty, replaces the macAddr field
	// alongside a ticket override.
	OverrideMacAddress string
}

// Packet fields and transaction names the rewrite policy acts on.
const (
	accountPacketType = "acct"
	ticketField       = "ticket"
	macAddrField      = "macAddr"
)

// authTransactions are the account transactions that carry a login ticket.
var authTransactions = map[string]bool{
	"NuLogin":    true,
	"NuPS3Login": true,
}
