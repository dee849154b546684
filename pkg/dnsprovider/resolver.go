package dnsprovider

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/cuemby/burrow/pkg/log"
)

// DefaultResolvers are public recursive resolvers used to observe propagation
var DefaultResolvers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Resolver queries external DNS servers directly, bypassing the host's resolver cache
type Resolver struct {
	servers []string
	client  *dns.Client
}

// NewResolver creates a resolver for servers (host:port). Empty servers selects DefaultResolvers.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = DefaultResolvers
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}

	return &Resolver{
		servers: normalized,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupAddr returns the A (or AAAA when ipv6 is set) values for name.
// The first server that answers wins; NXDOMAIN yields an empty slice.
func (r *Resolver) LookupAddr(ctx context.Context, name string, ipv6 bool) ([]string, error) {
	qtype := dns.TypeA
	if ipv6 {
		qtype = dns.TypeAAAA
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			log.Logger.Debug().
				Err(err).
				Str("component", "dns.resolver").
				Str("server", server).
				Str("query", name).
				Msg("resolver did not answer")
			continue
		}

		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		return extractAddrs(resp.Answer, qtype), nil
	}

	return nil, fmt.Errorf("failed to resolve %s: %w", name, lastErr)
}

func extractAddrs(answer []dns.RR, qtype uint16) []string {
	var addrs []string
	for _, rr := range answer {
		switch rec := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				addrs = append(addrs, rec.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				addrs = append(addrs, rec.AAAA.String())
			}
		}
	}
	return addrs
}

// String renders the servers for logs
func (r *Resolver) String() string {
	return strings.Join(r.servers, ",")
}
