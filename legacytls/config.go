package legacytls

import (
	"crypto/tls"
	"crypto/x509"
)

// ServerConfig builds the downstream TLS configuration: the proxy presents
// cert as the server identity the client expects and offers the legacy
// suites the client's stack negotiates. RC4 suites are valid only up to
// TLS 1.2, so the version window is pinned accordingly.
func ServerConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS10,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: SuiteIDs(),
	}
}

// ClientConfig builds the upstream TLS configuration. Chain verification is
// disabled at the engine level and every presented certificate is routed
// through auth instead, so the trust decision lives in one auditable place.
func ClientConfig(auth PeerAuthenticator, serverName string) *tls.Config {
	return &tls.Config{
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS10,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: SuiteIDs(),

		// Trust is delegated to auth.OnPeerCertificate below.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			chain := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					// Unparseable certificates are still observed as
					// an empty chain; the policy decides.
					continue
				}
				chain = append(chain, cert)
			}
			return auth.OnPeerCertificate(chain)
		},
		GetClientCertificate: func(req *tls.CertificateRequestInfo) (*tls.Certificate, error) {
			return auth.ClientCredentials(req)
		},
	}
}
