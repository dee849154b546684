package certs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// DefaultRenewBeforeDays is the renewal window used when none is configured
	DefaultRenewBeforeDays = 30

	// DefaultWaitAttempts and DefaultWaitInterval bound the propagation poll
	DefaultWaitAttempts = 12
	DefaultWaitInterval = 10 * time.Second
)

// AddressResolver looks up the public address records of a name
type AddressResolver interface {
	LookupAddr(ctx context.Context, name string, ipv6 bool) ([]string, error)
}

// Options configures a Provider
type Options struct {
	LiveDir      string
	Issuer       Issuer
	Resolver     AddressResolver
	WaitInterval time.Duration
}

// Provider manages one certificate bundle per full domain
type Provider struct {
	liveDir  string
	issuer   Issuer
	resolver AddressResolver
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewProvider creates a certificate provider
func NewProvider(opts Options) *Provider {
	interval := opts.WaitInterval
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	return &Provider{
		liveDir:  opts.LiveDir,
		issuer:   opts.Issuer,
		resolver: opts.Resolver,
		interval: interval,
		now:      time.Now,
		logger:   log.WithComponent("certs"),
	}
}

// Paths returns where the bundle for fullDomain is expected
func (p *Provider) Paths(fullDomain string) types.CertificatePaths {
	return BundlePaths(p.liveDir, fullDomain)
}

// Get returns the bundle for fullDomain, or nil when any of its files is missing
func (p *Provider) Get(ctx context.Context, fullDomain string) (*types.CertificateBundle, error) {
	paths := p.Paths(fullDomain)
	if !bundlePresent(paths) {
		return nil, nil
	}

	bundle := &types.CertificateBundle{
		Exists:     true,
		FullDomain: fullDomain,
		Paths:      paths,
	}

	data, err := os.ReadFile(paths.Cert)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	expiresAt, err := ParseExpiry(data)
	if err != nil {
		// Files are present, so the bundle exists; an unreadable expiry reads as due for renewal
		p.logger.Warn().Err(err).Str("domain", fullDomain).Msg("Could not parse certificate expiry")
		return bundle, nil
	}

	bundle.ExpiresAt = expiresAt
	bundle.DaysLeft = DaysLeft(expiresAt, p.now())
	return bundle, nil
}

// Check is a non-failing existence check
func (p *Provider) Check(ctx context.Context, fullDomain string) bool {
	bundle, err := p.Get(ctx, fullDomain)
	return err == nil && bundle != nil
}

// Create issues a bundle for fullDomain. It fails if one already exists.
func (p *Provider) Create(ctx context.Context, fullDomain, email string) (*types.CertificateBundle, error) {
	if email == "" {
		return nil, types.Validationf("a contact email is required to issue a certificate")
	}
	if p.issuer == nil {
		return nil, types.Validationf("no certificate issuer configured")
	}
	if err := p.issuer.Available(ctx); err != nil {
		if errors.Is(err, types.ErrValidation) {
			return nil, err
		}
		return nil, types.Validationf("%s unavailable: %v", p.issuer.Name(), err)
	}

	if p.Check(ctx, fullDomain) {
		return nil, fmt.Errorf("certificate for %s: %w", fullDomain, types.ErrAlreadyExists)
	}

	p.logger.Info().
		Str("domain", fullDomain).
		Str("issuer", p.issuer.Name()).
		Msg("Issuing certificate")

	if err := p.issuer.Issue(ctx, fullDomain, email); err != nil {
		return nil, err
	}

	bundle, err := p.Get(ctx, fullDomain)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, errIncomplete(p.issuer.Name(), fullDomain)
	}

	metrics.CertificateDaysLeft.WithLabelValues(fullDomain).Set(float64(bundle.DaysLeft))
	return bundle, nil
}

// Delete removes the bundle for fullDomain. It fails if none exists.
func (p *Provider) Delete(ctx context.Context, fullDomain string) error {
	if !p.Check(ctx, fullDomain) {
		return fmt.Errorf("certificate for %s: %w", fullDomain, types.ErrNotFound)
	}
	if p.issuer == nil {
		return types.Validationf("no certificate issuer configured")
	}

	if err := p.issuer.Remove(ctx, fullDomain); err != nil {
		return err
	}

	metrics.CertificateDaysLeft.DeleteLabelValues(fullDomain)
	p.logger.Info().Str("domain", fullDomain).Msg("Certificate removed")
	return nil
}

// Define replaces any existing bundle with a freshly issued one
func (p *Provider) Define(ctx context.Context, fullDomain, email string) (*types.CertificateBundle, error) {
	if out := p.Undefine(ctx, fullDomain); out.Failed() {
		return nil, out.Err
	}
	return p.Create(ctx, fullDomain, email)
}

// Undefine removes the bundle, treating absence as success
func (p *Provider) Undefine(ctx context.Context, fullDomain string) types.Outcome {
	return types.OutcomeOf(p.Delete(ctx, fullDomain))
}

// Renew renews the bundle once it is within daysBefore days of expiry.
// It reports whether a renewal was performed.
func (p *Provider) Renew(ctx context.Context, fullDomain string, daysBefore int) (bool, error) {
	bundle, err := p.Get(ctx, fullDomain)
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, fmt.Errorf("certificate for %s: %w", fullDomain, types.ErrNotFound)
	}

	if bundle.DaysLeft > daysBefore {
		return false, nil
	}
	if p.issuer == nil {
		return false, types.Validationf("no certificate issuer configured")
	}

	p.logger.Info().
		Str("domain", fullDomain).
		Int("days_left", bundle.DaysLeft).
		Msg("Renewing certificate")

	err = p.issuer.Renew(ctx, fullDomain)
	metrics.CertificateRenewals.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return false, err
	}

	if renewed, err := p.Get(ctx, fullDomain); err == nil && renewed != nil {
		metrics.CertificateDaysLeft.WithLabelValues(fullDomain).Set(float64(renewed.DaysLeft))
	}

	return true, nil
}

// Wait polls the resolver until fullDomain resolves to ip. The first poll is immediate
// and later polls are spaced by the configured interval. After maxAttempts misses it
// returns ErrPropagationTimeout.
func (p *Provider) Wait(ctx context.Context, fullDomain, ip string, maxAttempts int) error {
	if p.resolver == nil {
		return types.Validationf("no resolver configured for propagation checks")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultWaitAttempts
	}

	want := net.ParseIP(ip)
	if want == nil {
		return types.Validationf("invalid IP address %q", ip)
	}
	ipv6 := want.To4() == nil

	attempts := 0
	operation := func() error {
		attempts++
		addrs, err := p.resolver.LookupAddr(ctx, fullDomain, ipv6)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			if got := net.ParseIP(a); got != nil && got.Equal(want) {
				return nil
			}
		}
		return fmt.Errorf("resolved %v", addrs)
	}

	notify := func(err error, next time.Duration) {
		p.logger.Debug().
			Err(err).
			Str("domain", fullDomain).
			Int("attempt", attempts).
			Dur("next", next).
			Msg("DNS not propagated yet")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), uint64(maxAttempts-1)),
		ctx,
	)

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s did not resolve to %s after %d attempts: %v",
			types.ErrPropagationTimeout, fullDomain, ip, attempts, err)
	}

	metrics.PropagationAttempts.Observe(float64(attempts))
	p.logger.Info().
		Str("domain", fullDomain).
		Int("attempts", attempts).
		Msg("DNS propagated")

	return nil
}
