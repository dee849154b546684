package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/lock"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// Define pipeline steps, in order
const (
	StepCreateDNS     = "creating DNS record"
	StepPropagation   = "waiting for DNS propagation"
	StepCreateCert    = "creating SSL certificate"
	StepCreateProxy   = "creating proxy configuration"
	StepReinitProxy   = "reloading proxy"
	stepRemoveProxy   = "removing proxy configuration"
	stepRemoveCert    = "removing SSL certificate"
	stepRemoveDNS     = "removing DNS record"
	rollbackTimeout   = 5 * time.Minute
	listConcurrency   = 8
	loopbackProxyHost = "127.0.0.1"
)

// DNSProvider owns the address record of each label
type DNSProvider interface {
	Get(ctx context.Context, label string) (*types.AddressRecord, error)
	List(ctx context.Context) ([]*types.AddressRecord, error)
	Define(ctx context.Context, label string, cfg types.RecordConfig) (*types.AddressRecord, error)
	Undefine(ctx context.Context, label string) types.Outcome
}

// CertProvider owns the certificate bundle of each full domain
type CertProvider interface {
	Get(ctx context.Context, fullDomain string) (*types.CertificateBundle, error)
	Define(ctx context.Context, fullDomain, email string) (*types.CertificateBundle, error)
	Undefine(ctx context.Context, fullDomain string) types.Outcome
	Renew(ctx context.Context, fullDomain string, daysBefore int) (bool, error)
	Wait(ctx context.Context, fullDomain, ip string, maxAttempts int) error
}

// ProxyProvider owns the virtual host of each full domain
type ProxyProvider interface {
	Get(ctx context.Context, serverName string) (*types.VirtualHost, error)
	List(ctx context.Context) ([]*types.VirtualHost, error)
	Define(ctx context.Context, serverName string, cfg types.VirtualHostConfig) (*types.VirtualHost, error)
	Undefine(ctx context.Context, serverName string) types.Outcome
	Reinitialize(ctx context.Context) error
}

// Config holds reconciler settings and per-define defaults
type Config struct {
	BaseDomain          string
	PropagationAttempts int
	DefaultIP           string
	DefaultTTL          int
	DefaultProxied      bool
	DefaultEmail        string
}

// Reconciler composes the three providers into subdomain operations.
// It keeps no state of its own; every read queries the providers.
type Reconciler struct {
	cfg    Config
	dns    DNSProvider
	certs  CertProvider
	proxy  ProxyProvider
	locker lock.Locker
	events events.Publisher
	logger zerolog.Logger
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithLocker serializes define and undefine per label
func WithLocker(l lock.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithEvents publishes lifecycle events to p
func WithEvents(p events.Publisher) Option {
	return func(r *Reconciler) { r.events = p }
}

// NewReconciler creates a reconciler over the given providers
func NewReconciler(cfg Config, dns DNSProvider, certs CertProvider, proxy ProxyProvider, opts ...Option) *Reconciler {
	cfg.BaseDomain = strings.TrimSuffix(strings.ToLower(cfg.BaseDomain), ".")
	if cfg.PropagationAttempts <= 0 {
		cfg.PropagationAttempts = 12
	}

	r := &Reconciler{
		cfg:    cfg,
		dns:    dns,
		certs:  certs,
		proxy:  proxy,
		logger: log.WithComponent("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// ValidateSubdomainName checks that label is a single DNS label:
// letters, digits and inner hyphens, at most 63 characters.
func ValidateSubdomainName(label string) error {
	if label == "" {
		return types.Validationf("subdomain name is empty")
	}
	if len(label) > 63 {
		return types.Validationf("subdomain name %q is longer than 63 characters", label)
	}
	if !labelPattern.MatchString(label) {
		return types.Validationf("invalid subdomain name %q: use letters, digits and inner hyphens", label)
	}
	return nil
}

// normalizeLabel lowercases label and validates it; the apex sentinel is allowed
func normalizeLabel(label string) (string, error) {
	label = strings.ToLower(label)
	if label == types.Apex {
		return label, nil
	}
	if err := ValidateSubdomainName(label); err != nil {
		return "", err
	}
	return label, nil
}

// BaseDomain returns the configured base domain
func (r *Reconciler) BaseDomain() string {
	return r.cfg.BaseDomain
}

// FullDomain returns the hostname served for label
func (r *Reconciler) FullDomain(label string) string {
	return types.FullDomain(label, r.cfg.BaseDomain)
}

func (r *Reconciler) lock(ctx context.Context, label string) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	return r.locker.Lock(ctx, label)
}

func (r *Reconciler) publish(eventType events.EventType, msg string, metadata map[string]string) {
	if r.events == nil {
		return
	}
	r.events.Publish(&events.Event{
		Type:     eventType,
		Message:  msg,
		Metadata: metadata,
	})
}

// resolveDefineConfig fills defaults and validates the caller's desired state
func (r *Reconciler) resolveDefineConfig(cfg types.DefineConfig) (types.DefineConfig, error) {
	if cfg.IP == "" {
		cfg.IP = r.cfg.DefaultIP
	}
	if cfg.TTL == 0 {
		cfg.TTL = r.cfg.DefaultTTL
	}
	if cfg.Proxied == nil {
		proxied := r.cfg.DefaultProxied
		cfg.Proxied = &proxied
	}
	if cfg.Email == "" {
		cfg.Email = r.cfg.DefaultEmail
	}

	if cfg.IP == "" {
		return cfg, types.Validationf("an IP address is required")
	}
	if net.ParseIP(cfg.IP) == nil {
		return cfg, types.Validationf("invalid IP address %q", cfg.IP)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, types.Validationf("port %d out of range", cfg.Port)
	}
	if cfg.Email == "" {
		return cfg, types.Validationf("a contact email is required for certificate issuance")
	}
	return cfg, nil
}

// Define brings label to the desired state: address record, propagation,
// certificate, virtual host and proxy reload, in that order. Any failure
// rolls back with a best-effort undefine and returns a *types.StepError.
func (r *Reconciler) Define(ctx context.Context, label string, cfg types.DefineConfig) (*types.SubdomainInfo, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return nil, err
	}
	cfg, err = r.resolveDefineConfig(cfg)
	if err != nil {
		return nil, err
	}

	unlock, err := r.lock(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", label, err)
	}
	defer unlock()

	fullDomain := r.FullDomain(label)
	logger := log.WithSubdomain("reconciler", label, fullDomain)

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DefineDuration)

	logger.Info().
		Str("ip", cfg.IP).
		Int("port", cfg.Port).
		Bool("proxied", cfg.IsProxied()).
		Msg("Defining subdomain")

	if step, err := r.define(ctx, label, fullDomain, cfg, logger); err != nil {
		metrics.DefineTotal.WithLabelValues("failure").Inc()
		metrics.DefineStepFailures.WithLabelValues(step).Inc()

		logger.Error().Err(err).Str("step", step).Msg("Define failed, rolling back")
		r.rollback(ctx, label, fullDomain, logger)

		r.publish(events.EventSubdomainDefineFailed,
			fmt.Sprintf("define %s failed at %s", fullDomain, step),
			map[string]string{"label": label, "domain": fullDomain, "step": step, "error": err.Error()})

		return nil, &types.StepError{Step: step, Err: err}
	}

	metrics.DefineTotal.WithLabelValues("success").Inc()

	info, err := r.getInfo(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("subdomain defined but status read failed: %w", err)
	}

	logger.Info().
		Bool("fully_active", info.FullyActive).
		Dur("took", timer.Duration()).
		Msg("Subdomain defined")

	r.publish(events.EventSubdomainDefined,
		fmt.Sprintf("%s -> %s:%d", fullDomain, loopbackProxyHost, cfg.Port),
		map[string]string{"label": label, "domain": fullDomain, "ip": cfg.IP, "port": strconv.Itoa(cfg.Port)})

	return info, nil
}

// define runs the pipeline and reports the step that failed
func (r *Reconciler) define(ctx context.Context, label, fullDomain string, cfg types.DefineConfig, logger zerolog.Logger) (string, error) {
	if _, err := r.dns.Define(ctx, label, types.RecordConfig{IP: cfg.IP, TTL: cfg.TTL, Proxied: cfg.IsProxied()}); err != nil {
		return StepCreateDNS, err
	}
	logger.Debug().Msg("DNS record defined")

	if cfg.IsProxied() {
		// Proxied records resolve to the DNS provider's edge, never to cfg.IP
		logger.Info().Msg("Record is proxied, skipping propagation check")
	} else if err := r.certs.Wait(ctx, fullDomain, cfg.IP, r.cfg.PropagationAttempts); err != nil {
		return StepPropagation, err
	}

	bundle, err := r.certs.Define(ctx, fullDomain, cfg.Email)
	if err != nil {
		return StepCreateCert, err
	}
	logger.Debug().Time("expires_at", bundle.ExpiresAt).Msg("Certificate defined")

	if _, err := r.proxy.Define(ctx, fullDomain, types.VirtualHostConfig{
		ProxyTarget: net.JoinHostPort(loopbackProxyHost, strconv.Itoa(cfg.Port)),
		TLSCertPath: bundle.Paths.FullChain,
		TLSKeyPath:  bundle.Paths.Key,
	}); err != nil {
		return StepCreateProxy, err
	}
	logger.Debug().Msg("Virtual host defined")

	if err := r.proxy.Reinitialize(ctx); err != nil {
		return StepReinitProxy, err
	}

	return "", nil
}

// rollback compensates a failed define. Its own failures are logged and dropped.
func (r *Reconciler) rollback(ctx context.Context, label, fullDomain string, logger zerolog.Logger) {
	metrics.RollbacksTotal.Inc()

	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	report := r.undefine(rbCtx, label, fullDomain)
	if err := report.Err(); err != nil {
		logger.Warn().Err(err).Msg("Rollback left state behind")
		return
	}
	logger.Info().Msg("Rolled back")
}

// Undefine removes everything burrow created for label. Sub-step failures do
// not stop the remaining sub-steps; they are collected in the report. The
// returned error is non-nil only for an invalid label or a lock failure.
func (r *Reconciler) Undefine(ctx context.Context, label string) (*Report, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return nil, err
	}

	unlock, err := r.lock(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", label, err)
	}
	defer unlock()

	fullDomain := r.FullDomain(label)
	logger := log.WithSubdomain("reconciler", label, fullDomain)
	logger.Info().Msg("Undefining subdomain")

	report := r.undefine(ctx, label, fullDomain)
	if err := report.Err(); err != nil {
		logger.Warn().Err(err).Msg("Subdomain undefined with warnings")
	} else {
		logger.Info().Msg("Subdomain undefined")
	}

	r.publish(events.EventSubdomainUndefined,
		fmt.Sprintf("%s undefined", fullDomain),
		map[string]string{"label": label, "domain": fullDomain, "warnings": strconv.Itoa(len(report.Warnings()))})

	return report, nil
}

func (r *Reconciler) undefine(ctx context.Context, label, fullDomain string) *Report {
	report := newReport(label, fullDomain)

	report.add(stepRemoveProxy, r.proxy.Undefine(ctx, fullDomain))
	report.add(stepRemoveCert, r.certs.Undefine(ctx, fullDomain))
	report.add(stepRemoveDNS, r.dns.Undefine(ctx, label))
	report.add(StepReinitProxy, types.OutcomeOf(r.proxy.Reinitialize(ctx)))

	for _, w := range report.Steps {
		if w.Outcome.Failed() {
			metrics.UndefineWarnings.WithLabelValues(w.Step).Inc()
		}
	}
	return report
}

// GetInfo queries all three providers for label
func (r *Reconciler) GetInfo(ctx context.Context, label string) (*types.SubdomainInfo, error) {
	label, err := normalizeLabel(label)
	if err != nil {
		return nil, err
	}
	return r.getInfo(ctx, label)
}

func (r *Reconciler) getInfo(ctx context.Context, label string) (*types.SubdomainInfo, error) {
	fullDomain := r.FullDomain(label)

	var (
		record *types.AddressRecord
		bundle *types.CertificateBundle
		vhost  *types.VirtualHost
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = r.dns.Get(gctx, label)
		if err != nil {
			return fmt.Errorf("failed to get DNS record: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bundle, err = r.certs.Get(gctx, fullDomain)
		if err != nil {
			return fmt.Errorf("failed to get certificate: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vhost, err = r.proxy.Get(gctx, fullDomain)
		if err != nil {
			return fmt.Errorf("failed to get virtual host: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return types.NewSubdomainInfo(label, fullDomain, record, bundle, vhost), nil
}

// List returns the fully active subdomains, sorted by label
func (r *Reconciler) List(ctx context.Context) ([]*types.SubdomainInfo, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*types.SubdomainInfo, 0, len(all))
	for _, info := range all {
		if info.FullyActive {
			active = append(active, info)
		}
	}
	return active, nil
}

// ListAll returns every label that has an address record or a virtual host
// under the base domain, partially configured ones included
func (r *Reconciler) ListAll(ctx context.Context) ([]*types.SubdomainInfo, error) {
	var (
		records []*types.AddressRecord
		vhosts  []*types.VirtualHost
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = r.dns.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to list DNS records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vhosts, err = r.proxy.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to list virtual hosts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recordsByLabel := make(map[string]*types.AddressRecord)
	for _, rec := range records {
		if label, ok := r.managedLabel(rec.Name); ok {
			if _, seen := recordsByLabel[label]; !seen {
				recordsByLabel[label] = rec
			}
		}
	}
	vhostsByLabel := make(map[string]*types.VirtualHost)
	for _, vh := range vhosts {
		if label, ok := r.managedLabel(vh.ServerName); ok {
			vhostsByLabel[label] = vh
		}
	}

	labels := make([]string, 0, len(recordsByLabel)+len(vhostsByLabel))
	for label := range recordsByLabel {
		labels = append(labels, label)
	}
	for label := range vhostsByLabel {
		if _, ok := recordsByLabel[label]; !ok {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)

	infos := make([]*types.SubdomainInfo, len(labels))
	cg, cctx := errgroup.WithContext(ctx)
	cg.SetLimit(listConcurrency)
	for i, label := range labels {
		i, label := i, label
		cg.Go(func() error {
			fullDomain := r.FullDomain(label)
			bundle, err := r.certs.Get(cctx, fullDomain)
			if err != nil {
				return fmt.Errorf("failed to get certificate for %s: %w", fullDomain, err)
			}
			infos[i] = types.NewSubdomainInfo(label, fullDomain, recordsByLabel[label], bundle, vhostsByLabel[label])
			return nil
		})
	}
	if err := cg.Wait(); err != nil {
		return nil, err
	}

	return infos, nil
}

// managedLabel maps name to a label this reconciler could have created
func (r *Reconciler) managedLabel(name string) (string, bool) {
	label, ok := types.LabelFor(name, r.cfg.BaseDomain)
	if !ok {
		return "", false
	}
	if label == types.Apex || ValidateSubdomainName(label) == nil {
		return label, true
	}
	return "", false
}

// IsStep reports whether err is a define failure at step
func IsStep(err error, step string) bool {
	var stepErr *types.StepError
	return errors.As(err, &stepErr) && stepErr.Step == step
}
