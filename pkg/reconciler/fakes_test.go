package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/types"
)

const testBase = "example.com"

// journal records provider calls across the three fakes, in order
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeDNS struct {
	mu          sync.Mutex
	j           *journal
	records     map[string]*types.AddressRecord
	defineErr   error
	undefineErr error
	getErr      error
	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func newFakeDNS(j *journal) *fakeDNS {
	return &fakeDNS{j: j, records: make(map[string]*types.AddressRecord)}
}

func (f *fakeDNS) Get(ctx context.Context, label string) (*types.AddressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.records[label], nil
}

func (f *fakeDNS) List(ctx context.Context) ([]*types.AddressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.AddressRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeDNS) Define(ctx context.Context, label string, cfg types.RecordConfig) (*types.AddressRecord, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.j.add("dns.define %s %s", label, cfg.IP)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.defineErr != nil {
		return nil, f.defineErr
	}
	rec := &types.AddressRecord{
		ID:      "rec-" + label,
		Name:    types.FullDomain(label, testBase),
		Type:    types.RecordTypeFor(cfg.IP),
		Content: cfg.IP,
		TTL:     cfg.TTL,
		Proxied: cfg.Proxied,
	}
	f.records[label] = rec
	return rec, nil
}

func (f *fakeDNS) Undefine(ctx context.Context, label string) types.Outcome {
	f.j.add("dns.undefine %s", label)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.undefineErr != nil {
		return types.OutcomeOf(f.undefineErr)
	}
	if _, ok := f.records[label]; !ok {
		return types.OutcomeOf(types.ErrNotFound)
	}
	delete(f.records, label)
	return types.OutcomeOf(nil)
}

// seed adds a record as if created out of band
func (f *fakeDNS) seed(name, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	label, _ := types.LabelFor(name, testBase)
	if label == "" {
		label = name
	}
	f.records[label] = &types.AddressRecord{Name: name, Type: types.RecordTypeFor(ip), Content: ip}
}

type fakeCerts struct {
	mu          sync.Mutex
	j           *journal
	bundles     map[string]*types.CertificateBundle
	defineErr   error
	undefineErr error
	waitErr     error
	renewErr    error
	daysLeft    int
	waits       []string
}

func newFakeCerts(j *journal) *fakeCerts {
	return &fakeCerts{j: j, bundles: make(map[string]*types.CertificateBundle), daysLeft: 89}
}

func (f *fakeCerts) paths(fullDomain string) types.CertificatePaths {
	dir := "/etc/letsencrypt/live/" + fullDomain
	return types.CertificatePaths{Cert: dir + "/cert.pem", Key: dir + "/privkey.pem", FullChain: dir + "/fullchain.pem"}
}

func (f *fakeCerts) Get(ctx context.Context, fullDomain string) (*types.CertificateBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundles[fullDomain], nil
}

func (f *fakeCerts) Define(ctx context.Context, fullDomain, email string) (*types.CertificateBundle, error) {
	f.j.add("certs.define %s %s", fullDomain, email)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.defineErr != nil {
		return nil, f.defineErr
	}
	b := &types.CertificateBundle{
		Exists:     true,
		FullDomain: fullDomain,
		ExpiresAt:  time.Now().Add(time.Duration(f.daysLeft) * 24 * time.Hour),
		DaysLeft:   f.daysLeft,
		Paths:      f.paths(fullDomain),
	}
	f.bundles[fullDomain] = b
	return b, nil
}

func (f *fakeCerts) Undefine(ctx context.Context, fullDomain string) types.Outcome {
	f.j.add("certs.undefine %s", fullDomain)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.undefineErr != nil {
		return types.OutcomeOf(f.undefineErr)
	}
	if _, ok := f.bundles[fullDomain]; !ok {
		return types.OutcomeOf(types.ErrNotFound)
	}
	delete(f.bundles, fullDomain)
	return types.OutcomeOf(nil)
}

func (f *fakeCerts) Renew(ctx context.Context, fullDomain string, daysBefore int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bundles[fullDomain]
	if !ok {
		return false, types.ErrNotFound
	}
	if b.DaysLeft > daysBefore {
		return false, nil
	}
	f.j.add("certs.renew %s", fullDomain)
	if f.renewErr != nil {
		return false, f.renewErr
	}
	b.DaysLeft = 89
	return true, nil
}

func (f *fakeCerts) Wait(ctx context.Context, fullDomain, ip string, maxAttempts int) error {
	f.j.add("certs.wait %s %s %d", fullDomain, ip, maxAttempts)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, fullDomain)
	return f.waitErr
}

type fakeProxy struct {
	mu          sync.Mutex
	j           *journal
	vhosts      map[string]*types.VirtualHost
	defineErr   error
	undefineErr error
	reinitErr   error
	reinits     int
}

func newFakeProxy(j *journal) *fakeProxy {
	return &fakeProxy{j: j, vhosts: make(map[string]*types.VirtualHost)}
}

func (f *fakeProxy) Get(ctx context.Context, serverName string) (*types.VirtualHost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vhosts[serverName], nil
}

func (f *fakeProxy) List(ctx context.Context) ([]*types.VirtualHost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.VirtualHost
	for _, v := range f.vhosts {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeProxy) Define(ctx context.Context, serverName string, cfg types.VirtualHostConfig) (*types.VirtualHost, error) {
	f.j.add("proxy.define %s %s", serverName, cfg.ProxyTarget)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.defineErr != nil {
		return nil, f.defineErr
	}
	v := &types.VirtualHost{
		ServerName:  serverName,
		ProxyTarget: cfg.ProxyTarget,
		BackendPort: types.PortFromTarget(cfg.ProxyTarget),
		TLSCertPath: cfg.TLSCertPath,
		TLSKeyPath:  cfg.TLSKeyPath,
		Enabled:     true,
	}
	f.vhosts[serverName] = v
	return v, nil
}

func (f *fakeProxy) Undefine(ctx context.Context, serverName string) types.Outcome {
	f.j.add("proxy.undefine %s", serverName)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.undefineErr != nil {
		return types.OutcomeOf(f.undefineErr)
	}
	if _, ok := f.vhosts[serverName]; !ok {
		return types.OutcomeOf(types.ErrNotFound)
	}
	delete(f.vhosts, serverName)
	return types.OutcomeOf(nil)
}

func (f *fakeProxy) Reinitialize(ctx context.Context) error {
	f.j.add("proxy.reinitialize")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinits++
	return f.reinitErr
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(e *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	j      *journal
	dns    *fakeDNS
	certs  *fakeCerts
	proxy  *fakeProxy
	events *recordingPublisher
	rec    *Reconciler
}

func newHarness(opts ...Option) *harness {
	j := &journal{}
	h := &harness{
		j:      j,
		dns:    newFakeDNS(j),
		certs:  newFakeCerts(j),
		proxy:  newFakeProxy(j),
		events: &recordingPublisher{},
	}
	opts = append([]Option{WithEvents(h.events)}, opts...)
	h.rec = NewReconciler(Config{
		BaseDomain:          testBase,
		PropagationAttempts: 12,
		DefaultEmail:        "ops@example.com",
	}, h.dns, h.certs, h.proxy, opts...)
	return h
}

var appConfig = types.DefineConfig{IP: "203.0.113.10", Port: 3000}
