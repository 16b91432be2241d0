// Package dnsspoof answers the game client's lookups for the backend's
// hostnames with the proxy's own address, so the client connects here
// without any modification on its side. Lookups outside the configured
// zones are forwarded to a real resolver.
package dnsspoof

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const answerTTL = 60

// Redirector is a small UDP DNS server with a fixed spoof list.
type Redirector struct {
	target   net.IP
	zones    []string
	resolver string // upstream resolver host:port; "" answers NXDOMAIN instead
	client   *dns.Client
	server   *dns.Server
	logger   *zap.Logger
}

// NewRedirector builds a redirector answering A queries under the given
// zones with target.
func NewRedirector(target net.IP, zones []string, resolver string, logger *zap.Logger) *Redirector {
	normalized := make([]string, 0, len(zones))
	for _, zone := range zones {
		zone = strings.ToLower(strings.Trim(zone, "."))
		if zone != "" {
			normalized = append(normalized, zone)
		}
	}
	return &Redirector{
		target:   target,
		zones:    normalized,
		resolver: resolver,
		client:   &dns.Client{Timeout: 5 * time.Second},
		logger:   logger.With(zap.String("component", "dns_redirector")),
	}
}

// ListenAndServe binds a UDP listener and serves until Shutdown.
func (r *Redirector) ListenAndServe(addr string) error {
	r.logger.Info("dns redirector listening",
		zap.String("addr", addr),
		zap.Strings("zones", r.zones),
		zap.String("target", r.target.String()))
	r.server = &dns.Server{Addr: addr, Net: "udp", Handler: r}
	return r.server.ListenAndServe()
}

// Shutdown stops the listener.
func (r *Redirector) Shutdown() error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown()
}

// ServeDNS implements dns.Handler.
func (r *Redirector) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	if len(req.Question) == 0 {
		r.refuse(w, req, dns.RcodeFormatError)
		return
	}

	q := req.Question[0]
	name := strings.ToLower(strings.TrimSuffix(q.Name, "."))

	if q.Qtype == dns.TypeA && r.matches(name) {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Authoritative = true
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    answerTTL,
			},
			A: r.target,
		})
		r.logger.Info("redirecting lookup",
			zap.String("name", name),
			zap.String("target", r.target.String()))
		w.WriteMsg(m)
		return
	}

	if r.resolver == "" {
		r.refuse(w, req, dns.RcodeNameError)
		return
	}

	resp, _, err := r.client.Exchange(req, r.resolver)
	if err != nil {
		r.logger.Warn("upstream resolver failed",
			zap.String("name", name),
			zap.String("resolver", r.resolver),
			zap.Error(err))
		r.refuse(w, req, dns.RcodeServerFailure)
		return
	}
	w.WriteMsg(resp)
}

func (r *Redirector) matches(name string) bool {
	for _, zone := range r.zones {
		if name == zone || strings.HasSuffix(name, "."+zone) {
			return true
		}
	}
	return false
}

func (r *Redirector) refuse(w dns.ResponseWriter, req *dns.Msg, rcode int) {
	m := new(dns.Msg)
	m.SetRcode(req, rcode)
	w.WriteMsg(m)
}
