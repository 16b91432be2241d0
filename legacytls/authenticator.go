package legacytls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"go.uber.org/zap"
)

// PeerAuthenticator is invoked by the TLS engine at the two handshake points
// this proxy cares about on its upstream hop: when the server requests a
// client certificate and when the server presents its own.
type PeerAuthenticator interface {
	// ClientCredentials supplies a client certificate. No credential is
	// ever offered here; an upstream that demands one must fail the
	// handshake rather than proceed unauthenticated.
	ClientCredentials(req *tls.CertificateRequestInfo) (*tls.Certificate, error)

	// OnPeerCertificate observes the server's certificate chain. The
	// return value decides whether the handshake continues.
	OnPeerCertificate(chain []*x509.Certificate) error
}

var errNoClientCredentials = errors.New("client certificates are not supported")

// RelaxedTrust accepts whatever certificate the upstream presents, logging
// it instead of verifying it. The proxy does not anchor trust in the real
// backend's PKI; this relaxation is scoped to the single upstream hop and is
// not a general skip-all-validation default.
type RelaxedTrust struct {
	logger *zap.Logger
}

// NewRelaxedTrust creates the proxy's upstream trust policy.
func NewRelaxedTrust(logger *zap.Logger) *RelaxedTrust {
	return &RelaxedTrust{
		logger: logger.With(zap.String("component", "relaxed_trust")),
	}
}

func (t *RelaxedTrust) ClientCredentials(req *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	t.logger.Error("upstream requested a client certificate, refusing")
	return nil, errNoClientCredentials
}

func (t *RelaxedTrust) OnPeerCertificate(chain []*x509.Certificate) error {
	if len(chain) == 0 {
		t.logger.Warn("upstream presented no certificate")
		return nil
	}
	leaf := chain[0]
	t.logger.Info("accepting upstream certificate without verification",
		zap.String("subject", leaf.Subject.String()),
		zap.String("issuer", leaf.Issuer.String()),
		zap.Time("not_before", leaf.NotBefore),
		zap.Time("not_after", leaf.NotAfter),
		zap.Int("chain_length", len(chain)))
	return nil
}
