package certs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/command"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

// Certbot challenge modes
const (
	CertbotWebroot    = "webroot"
	CertbotStandalone = "standalone"
	CertbotNginx      = "nginx"
)

// CertbotConfig configures the certbot issuer
type CertbotConfig struct {
	Path      string // certbot binary
	ConfigDir string // --config-dir; bundles live under <ConfigDir>/live
	Mode      string // webroot, standalone or nginx
	Webroot   string // used in webroot mode
	Staging   bool
}

// CertbotIssuer drives the certbot CLI
type CertbotIssuer struct {
	cfg    CertbotConfig
	runner command.Runner
}

// NewCertbotIssuer creates a certbot-backed issuer
func NewCertbotIssuer(cfg CertbotConfig, runner command.Runner) *CertbotIssuer {
	if cfg.Path == "" {
		cfg.Path = "certbot"
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = "/etc/letsencrypt"
	}
	if cfg.Mode == "" {
		cfg.Mode = CertbotWebroot
	}
	return &CertbotIssuer{cfg: cfg, runner: runner}
}

// LiveDir is where certbot places bundles
func (c *CertbotIssuer) LiveDir() string {
	return filepath.Join(c.cfg.ConfigDir, "live")
}

func (c *CertbotIssuer) Name() string {
	return "certbot"
}

func (c *CertbotIssuer) Available(ctx context.Context) error {
	if _, err := c.runner.LookPath(c.cfg.Path); err != nil {
		return types.Validationf("certbot not available at %q: %v", c.cfg.Path, err)
	}
	if c.cfg.Mode == CertbotWebroot && c.cfg.Webroot == "" {
		return types.Validationf("certbot webroot mode requires a webroot directory")
	}
	return nil
}

func (c *CertbotIssuer) Issue(ctx context.Context, fullDomain, email string) error {
	args := []string{
		"certonly",
		"--non-interactive",
		"--agree-tos",
		"--config-dir", c.cfg.ConfigDir,
		"--email", email,
		"--cert-name", fullDomain,
		"-d", fullDomain,
	}

	switch c.cfg.Mode {
	case CertbotWebroot:
		args = append(args, "--webroot", "-w", c.cfg.Webroot)
	case CertbotStandalone:
		args = append(args, "--standalone")
	case CertbotNginx:
		args = append(args, "--nginx")
	default:
		return types.Validationf("unknown certbot mode %q", c.cfg.Mode)
	}

	if c.cfg.Staging {
		args = append(args, "--staging")
	}

	return c.run(ctx, "certonly", args...)
}

func (c *CertbotIssuer) Renew(ctx context.Context, fullDomain string) error {
	return c.run(ctx, "renew",
		"renew",
		"--non-interactive",
		"--config-dir", c.cfg.ConfigDir,
		"--cert-name", fullDomain,
		"--force-renewal",
	)
}

func (c *CertbotIssuer) Remove(ctx context.Context, fullDomain string) error {
	return c.run(ctx, "delete",
		"delete",
		"--non-interactive",
		"--config-dir", c.cfg.ConfigDir,
		"--cert-name", fullDomain,
	)
}

func (c *CertbotIssuer) run(ctx context.Context, op string, args ...string) error {
	out, err := c.runner.Run(ctx, c.cfg.Path, args...)
	if err != nil {
		return &types.ProviderError{Provider: c.Name(), Op: op, Err: err}
	}

	log.Logger.Debug().
		Str("component", "certs.certbot").
		Str("op", op).
		Int("output_bytes", len(out)).
		Msg("certbot finished")

	return nil
}

// errIncomplete is returned when an issuer reports success but the bundle is not on disk
func errIncomplete(issuer, fullDomain string) error {
	return &types.ProviderError{
		Provider: issuer,
		Op:       "issue",
		Err:      fmt.Errorf("bundle for %s incomplete after issuance", fullDomain),
	}
}
