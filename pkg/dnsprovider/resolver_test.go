package dnsprovider

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestDNS serves a static zone on a random local UDP port
func startTestDNS(t *testing.T, zone map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]

		ip, ok := zone[q.Name]
		if !ok {
			m.Rcode = dns.RcodeNameError
			_ = w.WriteMsg(m)
			return
		}

		parsed := net.ParseIP(ip)
		hdr := dns.RR_Header{Name: q.Name, Class: dns.ClassINET, Ttl: 60}
		switch {
		case q.Qtype == dns.TypeA && parsed.To4() != nil:
			hdr.Rrtype = dns.TypeA
			m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: parsed})
		case q.Qtype == dns.TypeAAAA && parsed.To4() == nil:
			hdr.Rrtype = dns.TypeAAAA
			m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: parsed})
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("test DNS server did not start")
	}

	return pc.LocalAddr().String()
}

func TestResolverLookupAddr(t *testing.T) {
	addr := startTestDNS(t, map[string]string{
		"app.example.com.": "203.0.113.10",
		"v6.example.com.":  "2001:db8::1",
	})
	r := NewResolver([]string{addr}, time.Second)
	ctx := context.Background()

	addrs, err := r.LookupAddr(ctx, "app.example.com", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10"}, addrs)

	addrs, err = r.LookupAddr(ctx, "v6.example.com", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"2001:db8::1"}, addrs)

	addrs, err = r.LookupAddr(ctx, "missing.example.com", false)
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestResolverFallsThroughDeadServer(t *testing.T) {
	addr := startTestDNS(t, map[string]string{"app.example.com.": "203.0.113.10"})

	// Nothing listens on the first server
	dead, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.LocalAddr().String()
	dead.Close()

	r := NewResolver([]string{deadAddr, addr}, 200*time.Millisecond)

	addrs, err := r.LookupAddr(context.Background(), "app.example.com", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10"}, addrs)
}

func TestNewResolverNormalizesServers(t *testing.T) {
	r := NewResolver([]string{"9.9.9.9", "1.1.1.1:5353", "2620:fe::fe"}, 0)
	assert.Equal(t, "9.9.9.9:53,1.1.1.1:5353,[2620:fe::fe]:53", r.String())

	assert.Equal(t, strings.Join(DefaultResolvers, ","), NewResolver(nil, 0).String())
}
