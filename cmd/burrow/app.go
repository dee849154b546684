package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/certs"
	"github.com/cuemby/burrow/pkg/command"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dnsprovider"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/lock"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/proxy"
	"github.com/cuemby/burrow/pkg/reconciler"
	"github.com/cuemby/burrow/pkg/storage"
)

// app wires the providers described by one configuration file
type app struct {
	cfg        *config.Config
	store      *storage.BoltStore
	cloudflare *dnsprovider.CloudflareClient
	resolver   *dnsprovider.Resolver
	issuer     certs.Issuer
	certs      *certs.Provider
	proxy      *proxy.NginxProvider
	broker     *events.Broker
	rec        *reconciler.Reconciler
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path, err := config.Find(explicit)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	runner := command.NewExecRunner()

	cloudflare := dnsprovider.NewCloudflareClient(cfg.DNS.Cloudflare.APIToken, cfg.DNS.Cloudflare.ZoneID, cfg.DNS.Cloudflare.BaseURL)
	dns := dnsprovider.NewProvider(cloudflare, cfg.BaseDomain)

	var issuer certs.Issuer
	switch cfg.Certs.Issuer {
	case config.IssuerLego:
		issuer = certs.NewLegoIssuer(certs.LegoConfig{
			LiveDir:   cfg.Certs.LiveDir,
			Webroot:   cfg.Certs.Webroot,
			Directory: acmeDirectory(cfg),
		}, store)
	default:
		certbot := certs.NewCertbotIssuer(certs.CertbotConfig{
			Path:      cfg.Certs.CertbotPath,
			ConfigDir: cfg.Certs.ConfigDir,
			Mode:      cfg.Certs.CertbotMode,
			Webroot:   cfg.Certs.Webroot,
			Staging:   cfg.Certs.Staging,
		}, runner)
		if filepath.Clean(cfg.Certs.LiveDir) != certbot.LiveDir() {
			log.Logger.Warn().
				Str("live_dir", cfg.Certs.LiveDir).
				Str("certbot_live_dir", certbot.LiveDir()).
				Msg("certs.live_dir differs from where certbot writes bundles")
		}
		issuer = certbot
	}

	resolver := dnsprovider.NewResolver(cfg.DNS.Resolvers, 0)

	certProvider := certs.NewProvider(certs.Options{
		LiveDir:      cfg.Certs.LiveDir,
		Issuer:       issuer,
		Resolver:     resolver,
		WaitInterval: cfg.Propagation.Interval,
	})

	proxyProvider := proxy.NewNginxProvider(proxy.Config{
		SitesAvailable: cfg.Proxy.SitesAvailable,
		SitesEnabled:   cfg.Proxy.SitesEnabled,
		NginxBin:       cfg.Proxy.NginxBin,
		ReloadCmd:      cfg.Proxy.ReloadCmd,
		Webroot:        cfg.Certs.Webroot,
	}, runner, store)

	var locker lock.Locker = lock.NewMemory()
	if cfg.Lock.Mode == config.LockFile {
		fileLock, err := lock.NewFile(filepath.Join(cfg.DataDir, "locks"))
		if err != nil {
			store.Close()
			return nil, err
		}
		locker = fileLock
	}

	broker := events.NewBroker()
	broker.Start()

	rec := reconciler.NewReconciler(reconciler.Config{
		BaseDomain:          dns.BaseDomain(),
		PropagationAttempts: cfg.Propagation.Attempts,
		DefaultIP:           cfg.ServerIP,
		DefaultTTL:          cfg.DNS.TTL,
		DefaultProxied:      cfg.DNS.Proxied,
		DefaultEmail:        cfg.Certs.Email,
	}, dns, certProvider, proxyProvider,
		reconciler.WithLocker(locker),
		reconciler.WithEvents(broker),
	)

	return &app{
		cfg:        cfg,
		store:      store,
		cloudflare: cloudflare,
		resolver:   resolver,
		issuer:     issuer,
		certs:      certProvider,
		proxy:      proxyProvider,
		broker:     broker,
		rec:        rec,
	}, nil
}

func acmeDirectory(cfg *config.Config) string {
	if cfg.Certs.ACMEDirectory != "" {
		return cfg.Certs.ACMEDirectory
	}
	if cfg.Certs.Staging {
		return certs.LetsEncryptStaging
	}
	return certs.LetsEncryptProduction
}

// registerChecks adds one check per upstream the reconciler depends on
func (a *app) registerChecks(m *health.Monitor) {
	m.Register("dns", health.NewFuncChecker(a.cloudflare.Verify))
	m.Register("certs", health.NewFuncChecker(a.issuer.Available))
	m.Register("proxy", health.NewFuncChecker(a.proxy.Validate))
}

func (a *app) Close() {
	a.broker.Stop()
	a.store.Close()
}
