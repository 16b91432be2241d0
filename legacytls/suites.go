// Package legacytls supplies the TLS capabilities the game client's era
// requires but modern defaults omit: the obsolete cipher suites for both
// handshake roles, the relaxed upstream trust policy, and the impostor
// server certificate presented downstream.
package legacytls

import (
	"crypto/cipher"
	"crypto/rc4"
	"crypto/tls"
)

// SuiteInfo contains metadata about a legacy cipher suite
type SuiteInfo struct {
	ID        uint16
	Name      string
	Algorithm string // "RC4-128", "3DES-EDE-CBC", "AES-128-CBC", "AES-256-CBC"
	KeyLength int    // Key length in bytes
	MACLength int    // HMAC-SHA1 output length in bytes
	Stream    bool   // true for stream ciphers, false for CBC block ciphers

	// NewKeystream builds the suite's keystream from a record-layer key
	// schedule. Only stream suites carry one; the engine derives block
	// cipher state itself.
	NewKeystream func(key []byte) (cipher.Stream, error)
}

// LegacySuites lists the suites offered to the client and to the upstream,
// most preferred first. The client negotiates TLS_RSA_WITH_RC4_128_SHA; the
// rest are era-appropriate fallbacks.
var LegacySuites = []SuiteInfo{
	{
		ID:           tls.TLS_RSA_WITH_RC4_128_SHA,
		Name:         "TLS_RSA_WITH_RC4_128_SHA",
		Algorithm:    "RC4-128",
		KeyLength:    16,
		MACLength:    20,
		Stream:       true,
		NewKeystream: newRC4Keystream,
	},
	{
		ID:           tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA,
		Name:         "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
		Algorithm:    "RC4-128",
		KeyLength:    16,
		MACLength:    20,
		Stream:       true,
		NewKeystream: newRC4Keystream,
	},
	{
		ID:        tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
		Name:      "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
		Algorithm: "3DES-EDE-CBC",
		KeyLength: 24,
		MACLength: 20,
	},
	{
		ID:        tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		Name:      "TLS_RSA_WITH_AES_128_CBC_SHA",
		Algorithm: "AES-128-CBC",
		KeyLength: 16,
		MACLength: 20,
	},
	{
		ID:        tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		Name:      "TLS_RSA_WITH_AES_256_CBC_SHA",
		Algorithm: "AES-256-CBC",
		KeyLength: 32,
		MACLength: 20,
	},
}

func newRC4Keystream(key []byte) (cipher.Stream, error) {
	return rc4.NewCipher(key)
}

// SuiteIDs returns the suite identifiers in preference order, ready for a
// tls.Config.CipherSuites list.
func SuiteIDs() []uint16 {
	ids := make([]uint16, len(LegacySuites))
	for i, s := range LegacySuites {
		ids[i] = s.ID
	}
	return ids
}

// SuiteName resolves a negotiated suite id to a readable name for logging.
func SuiteName(id uint16) string {
	for _, s := range LegacySuites {
		if s.ID == id {
			return s.Name
		}
	}
	return tls.CipherSuiteName(id)
}
