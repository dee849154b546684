package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/lock"
	"github.com/cuemby/burrow/pkg/types"
)

func TestValidateSubdomainName(t *testing.T) {
	tests := []struct {
		label string
		valid bool
	}{
		{"app", true},
		{"my-app", true},
		{"app123", true},
		{"a", true},
		{"", false},
		{"-bad", false},
		{"bad-", false},
		{"a.b", false},
		{"under_score", false},
		{"App", true},
		{" app ", false},
		{"a123456789012345678901234567890123456789012345678901234567890123", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := ValidateSubdomainName(tt.label)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, types.ErrValidation))
			}
		})
	}
}

func TestFullDomain(t *testing.T) {
	h := newHarness()

	assert.Equal(t, "example.com", h.rec.FullDomain(types.Apex))
	assert.Equal(t, "app.example.com", h.rec.FullDomain("app"))
}

func TestDefineRunsPipelineInOrder(t *testing.T) {
	h := newHarness()

	info, err := h.rec.Define(context.Background(), "app", appConfig)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"dns.define app 203.0.113.10",
		"certs.wait app.example.com 203.0.113.10 12",
		"certs.define app.example.com ops@example.com",
		"proxy.define app.example.com 127.0.0.1:3000",
		"proxy.reinitialize",
	}, h.j.list())

	assert.True(t, info.FullyActive)
	assert.Equal(t, "app", info.Label)
	assert.Equal(t, "app.example.com", info.FullDomain)
	assert.Equal(t, "203.0.113.10", info.IP)
	assert.Equal(t, 3000, info.Port)

	vhost := h.proxy.vhosts["app.example.com"]
	assert.Equal(t, "/etc/letsencrypt/live/app.example.com/fullchain.pem", vhost.TLSCertPath)
	assert.Equal(t, "/etc/letsencrypt/live/app.example.com/privkey.pem", vhost.TLSKeyPath)

	assert.Equal(t, []events.EventType{events.EventSubdomainDefined}, h.events.kinds())
}

func TestDefineIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)
	second, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)

	assert.Equal(t, first.FullyActive, second.FullyActive)
	assert.Equal(t, first.IP, second.IP)
	assert.Equal(t, first.Port, second.Port)
	assert.Len(t, h.dns.records, 1)
	assert.Len(t, h.proxy.vhosts, 1)
}

func TestDefineApex(t *testing.T) {
	h := newHarness()

	info, err := h.rec.Define(context.Background(), types.Apex, appConfig)
	require.NoError(t, err)
	assert.Equal(t, "example.com", info.FullDomain)
	assert.Contains(t, h.proxy.vhosts, "example.com")
}

func TestDefineRollsBackOnFailure(t *testing.T) {
	boom := errors.New("upstream exploded")

	tests := []struct {
		name   string
		breaks func(h *harness)
		step   string
		sentry error
	}{
		{
			name:   "dns",
			breaks: func(h *harness) { h.dns.defineErr = &types.ProviderError{Provider: "cloudflare", Op: "create", Err: boom} },
			step:   StepCreateDNS,
			sentry: boom,
		},
		{
			name:   "propagation",
			breaks: func(h *harness) { h.certs.waitErr = types.ErrPropagationTimeout },
			step:   StepPropagation,
			sentry: types.ErrPropagationTimeout,
		},
		{
			name:   "certificate",
			breaks: func(h *harness) { h.certs.defineErr = boom },
			step:   StepCreateCert,
			sentry: boom,
		},
		{
			name:   "proxy config",
			breaks: func(h *harness) { h.proxy.defineErr = boom },
			step:   StepCreateProxy,
			sentry: boom,
		},
		{
			name:   "proxy reload",
			breaks: func(h *harness) { h.proxy.reinitErr = boom },
			step:   StepReinitProxy,
			sentry: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.breaks(h)
			ctx := context.Background()

			info, err := h.rec.Define(ctx, "x", appConfig)
			require.Error(t, err)
			assert.Nil(t, info)

			var stepErr *types.StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, tt.step, stepErr.Step)
			assert.True(t, errors.Is(err, tt.sentry))
			assert.True(t, IsStep(err, tt.step))
			assert.Contains(t, err.Error(), "failed to define subdomain at "+tt.step)

			rec, err := h.dns.Get(ctx, "x")
			require.NoError(t, err)
			assert.Nil(t, rec, "rollback must remove the address record")
			assert.Empty(t, h.certs.bundles)
			assert.Empty(t, h.proxy.vhosts)

			assert.Equal(t, []events.EventType{events.EventSubdomainDefineFailed}, h.events.kinds())
		})
	}
}

func TestDefineRollbackFailureIsSwallowed(t *testing.T) {
	h := newHarness()
	h.certs.defineErr = errors.New("rate limited")
	h.dns.undefineErr = errors.New("cloudflare unavailable")

	_, err := h.rec.Define(context.Background(), "x", appConfig)

	require.Error(t, err)
	assert.True(t, IsStep(err, StepCreateCert))
	assert.Contains(t, err.Error(), "rate limited")
	assert.NotContains(t, err.Error(), "cloudflare unavailable")
}

func TestDefineRollbackSurvivesCancelledContext(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.certs.waitErr = context.Canceled
	cancel()

	_, err := h.rec.Define(ctx, "x", appConfig)
	require.Error(t, err)
	assert.True(t, IsStep(err, StepPropagation))
	assert.Empty(t, h.dns.records)
}

func TestDefineProxiedSkipsPropagationWait(t *testing.T) {
	h := newHarness()
	cfg := appConfig
	proxied := true
	cfg.Proxied = &proxied

	info, err := h.rec.Define(context.Background(), "app", cfg)
	require.NoError(t, err)
	assert.True(t, info.FullyActive)
	assert.Empty(t, h.certs.waits)
}

func TestDefineValidation(t *testing.T) {
	tests := []struct {
		name  string
		label string
		cfg   types.DefineConfig
	}{
		{name: "bad label", label: "-bad", cfg: appConfig},
		{name: "nested label", label: "a.b", cfg: appConfig},
		{name: "padded label", label: " app ", cfg: appConfig},
		{name: "missing ip", label: "app", cfg: types.DefineConfig{Port: 80}},
		{name: "bad ip", label: "app", cfg: types.DefineConfig{IP: "999.1.1.1", Port: 80}},
		{name: "bad port", label: "app", cfg: types.DefineConfig{IP: "203.0.113.10", Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.rec.Define(context.Background(), tt.label, tt.cfg)
			assert.True(t, errors.Is(err, types.ErrValidation))
			assert.Empty(t, h.j.list(), "no provider may be touched")
		})
	}

	h := newHarness()
	h.rec.cfg.DefaultEmail = ""
	_, err := h.rec.Define(context.Background(), "app", appConfig)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestDefineUsesDefaults(t *testing.T) {
	h := newHarness()
	h.rec.cfg.DefaultIP = "198.51.100.7"
	h.rec.cfg.DefaultTTL = 120

	_, err := h.rec.Define(context.Background(), "APP", types.DefineConfig{Port: 8080})
	require.NoError(t, err)

	rec := h.dns.records["app"]
	require.NotNil(t, rec)
	assert.Equal(t, "198.51.100.7", rec.Content)
	assert.Equal(t, 120, rec.TTL)
}

func TestUndefineCollectsWarnings(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.Define(ctx, "app", appConfig)
	require.NoError(t, err)

	h.certs.undefineErr = errors.New("certbot: delete failed")

	report, err := h.rec.Undefine(ctx, "app")
	require.NoError(t, err)
	require.Error(t, report.Err())
	assert.Len(t, report.Warnings(), 1)
	assert.Contains(t, report.Err().Error(), "certbot: delete failed")

	// Later sub-steps still ran
	assert.Empty(t, h.proxy.vhosts)
	assert.Empty(t, h.dns.records)

	out, ok := report.Outcome(stepRemoveDNS)
	require.True(t, ok)
	assert.Equal(t, types.OutcomeOK, out.Kind)

	out, ok = report.Outcome(stepRemoveCert)
	require.True(t, ok)
	assert.True(t, out.Failed())
}

func TestUndefineOrderAndAbsence(t *testing.T) {
	h := newHarness()

	report, err := h.rec.Undefine(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NoError(t, report.Err(), "absence is convergence, not a warning")

	assert.Equal(t, []string{
		"proxy.undefine ghost.example.com",
		"certs.undefine ghost.example.com",
		"dns.undefine ghost",
		"proxy.reinitialize",
	}, h.j.list())

	require.Len(t, report.Steps, 4)
	assert.Equal(t, "not_found", report.Steps[0].Result)
}

func TestUndefineRejectsBadLabel(t *testing.T) {
	h := newHarness()

	_, err := h.rec.Undefine(context.Background(), "a.b")
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Empty(t, h.j.list())
}

func TestGetInfoPartialState(t *testing.T) {
	h := newHarness()
	h.dns.seed("partial.example.com", "203.0.113.20")

	info, err := h.rec.GetInfo(context.Background(), "partial")
	require.NoError(t, err)
	assert.True(t, info.DNSStatus.Exists)
	assert.False(t, info.CertStatus.Exists)
	assert.False(t, info.ProxyStatus.Exists)
	assert.False(t, info.FullyActive)
	assert.Equal(t, "203.0.113.20", info.IP)
	assert.Zero(t, info.Port)
}

func TestGetInfoProviderError(t *testing.T) {
	h := newHarness()
	h.dns.getErr = errors.New("timeout")

	_, err := h.rec.GetInfo(context.Background(), "app")
	assert.Error(t, err)
}

func TestListOnlyFullyActive(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.rec.Define(ctx, "active", appConfig)
	require.NoError(t, err)
	_, err = h.rec.Define(ctx, "disabled", appConfig)
	require.NoError(t, err)
	h.proxy.vhosts["disabled.example.com"].Enabled = false

	h.dns.seed("partial.example.com", "203.0.113.20")
	h.dns.seed("app.other.org", "203.0.113.30")
	h.dns.seed("deep.nested.example.com", "203.0.113.40")

	infos, err := h.rec.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "active", infos[0].Label)

	all, err := h.rec.ListAll(ctx)
	require.NoError(t, err)
	var labels []string
	for _, info := range all {
		labels = append(labels, info.Label)
	}
	assert.Equal(t, []string{"active", "disabled", "partial"}, labels)
}

func TestLockerSerializesSameLabel(t *testing.T) {
	h := newHarness(WithLocker(lock.NewMemory()))
	h.dns.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.rec.Define(context.Background(), "app", appConfig)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.dns.maxInFlight)
}

func TestDefineLowercasesLabel(t *testing.T) {
	h := newHarness()

	info, err := h.rec.Define(context.Background(), "API", appConfig)
	require.NoError(t, err)
	assert.Equal(t, "api", info.Label)
	assert.Equal(t, "api.example.com", info.FullDomain)

	got, err := h.rec.GetInfo(context.Background(), "Api")
	require.NoError(t, err)
	assert.True(t, got.FullyActive)
}

func TestDefineProxiedDefault(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name        string
		proxied     *bool
		wantProxied bool
		wantWait    bool
	}{
		{name: "unset follows default", proxied: nil, wantProxied: true, wantWait: false},
		{name: "explicit false overrides default", proxied: &no, wantProxied: false, wantWait: true},
		{name: "explicit true", proxied: &yes, wantProxied: true, wantWait: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.rec.cfg.DefaultProxied = true

			cfg := appConfig
			cfg.Proxied = tt.proxied
			_, err := h.rec.Define(context.Background(), "app", cfg)
			require.NoError(t, err)

			rec := h.dns.records["app"]
			require.NotNil(t, rec)
			assert.Equal(t, tt.wantProxied, rec.Proxied)
			assert.Equal(t, tt.wantWait, len(h.certs.waits) == 1)
		})
	}
}
