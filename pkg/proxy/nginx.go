package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/command"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

const confSuffix = ".conf"

// ErrUnmanaged marks a config file burrow did not write. Such files are never
// listed, overwritten or removed.
var ErrUnmanaged = errors.New("not managed by burrow")

// Config locates the nginx installation
type Config struct {
	SitesAvailable string   // default /etc/nginx/sites-available
	SitesEnabled   string   // default /etc/nginx/sites-enabled
	NginxBin       string   // default nginx
	ReloadCmd      []string // overrides "nginx -s reload", e.g. systemctl reload nginx
	Webroot        string   // served for ACME HTTP-01 challenges when set
}

// NginxProvider manages one server block file per server name.
// A file in SitesAvailable means the host exists; a symlink to it in SitesEnabled means it is enabled.
type NginxProvider struct {
	cfg    Config
	runner command.Runner
	store  storage.Store
	logger zerolog.Logger
}

// NewNginxProvider creates a provider. store may be nil, in which case
// virtual hosts are always read back by parsing their files.
func NewNginxProvider(cfg Config, runner command.Runner, store storage.Store) *NginxProvider {
	if cfg.SitesAvailable == "" {
		cfg.SitesAvailable = "/etc/nginx/sites-available"
	}
	if cfg.SitesEnabled == "" {
		cfg.SitesEnabled = "/etc/nginx/sites-enabled"
	}
	if cfg.NginxBin == "" {
		cfg.NginxBin = "nginx"
	}
	return &NginxProvider{
		cfg:    cfg,
		runner: runner,
		store:  store,
		logger: log.WithComponent("proxy"),
	}
}

func (p *NginxProvider) availablePath(serverName string) string {
	return filepath.Join(p.cfg.SitesAvailable, serverName+confSuffix)
}

func (p *NginxProvider) enabledPath(serverName string) string {
	return filepath.Join(p.cfg.SitesEnabled, serverName+confSuffix)
}

// readManaged returns the config file of serverName. A missing file yields
// (nil, nil); a file without the managed marker yields ErrUnmanaged.
func (p *NginxProvider) readManaged(serverName string) ([]byte, error) {
	content, err := os.ReadFile(p.availablePath(serverName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read virtual host: %w", err)
	}
	if !isManaged(content) {
		return nil, fmt.Errorf("%w: virtual host %s: %w", types.ErrValidation, serverName, ErrUnmanaged)
	}
	return content, nil
}

// Get returns the virtual host for serverName, or nil if burrow has no config
// file for it. Hand-written files are reported as absent.
func (p *NginxProvider) Get(ctx context.Context, serverName string) (*types.VirtualHost, error) {
	content, err := p.readManaged(serverName)
	if errors.Is(err, ErrUnmanaged) {
		return nil, nil
	}
	if err != nil || content == nil {
		return nil, err
	}
	return p.build(ctx, serverName, content, p.lookupMetadata(serverName))
}

// build fills a VirtualHost from stored metadata, falling back to the file
func (p *NginxProvider) build(ctx context.Context, serverName string, content []byte, meta *types.VirtualHost) (*types.VirtualHost, error) {
	vhost := meta
	if vhost == nil {
		vhost = parse(content)
		if vhost.ServerName == "" {
			vhost.ServerName = serverName
		}
	}

	enabled, err := p.IsEnabled(ctx, serverName)
	if err != nil {
		return nil, err
	}
	vhost.Enabled = enabled

	return vhost, nil
}

// lookupMetadata returns stored metadata, or nil when the store has none
func (p *NginxProvider) lookupMetadata(serverName string) *types.VirtualHost {
	if p.store == nil {
		return nil
	}
	vhost, err := p.store.GetVirtualHost(serverName)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			p.logger.Warn().Err(err).Str("server_name", serverName).Msg("Falling back to parsing virtual host file")
		}
		return nil
	}
	return vhost
}

// metadataIndex loads all stored metadata in one read
func (p *NginxProvider) metadataIndex() map[string]*types.VirtualHost {
	index := make(map[string]*types.VirtualHost)
	if p.store == nil {
		return index
	}
	stored, err := p.store.ListVirtualHosts()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Falling back to parsing virtual host files")
		return index
	}
	for _, vh := range stored {
		index[vh.ServerName] = vh
	}
	return index
}

// List returns every virtual host managed by this provider, sorted by server name.
// The config files decide what exists; stored metadata only enriches them.
func (p *NginxProvider) List(ctx context.Context) ([]*types.VirtualHost, error) {
	entries, err := os.ReadDir(p.cfg.SitesAvailable)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list virtual hosts: %w", err)
	}

	index := p.metadataIndex()

	var vhosts []*types.VirtualHost
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), confSuffix) {
			continue
		}
		serverName := strings.TrimSuffix(entry.Name(), confSuffix)

		content, err := p.readManaged(serverName)
		if err != nil || content == nil {
			continue
		}

		vhost, err := p.build(ctx, serverName, content, index[serverName])
		if err != nil {
			return nil, err
		}
		vhosts = append(vhosts, vhost)
	}

	sort.Slice(vhosts, func(i, j int) bool { return vhosts[i].ServerName < vhosts[j].ServerName })
	return vhosts, nil
}

// Create writes and enables the virtual host. It fails if one already exists.
func (p *NginxProvider) Create(ctx context.Context, serverName string, cfg types.VirtualHostConfig) (*types.VirtualHost, error) {
	if serverName == "" {
		return nil, types.Validationf("server name is required")
	}
	if _, _, err := net.SplitHostPort(cfg.ProxyTarget); err != nil {
		return nil, types.Validationf("proxy target %q must be host:port", cfg.ProxyTarget)
	}

	existing, err := p.readManaged(serverName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("virtual host %s: %w", serverName, types.ErrAlreadyExists)
	}

	vhost := &types.VirtualHost{
		ServerName:  serverName,
		ProxyTarget: cfg.ProxyTarget,
		BackendPort: types.PortFromTarget(cfg.ProxyTarget),
		TLSCertPath: cfg.TLSCertPath,
		TLSKeyPath:  cfg.TLSKeyPath,
	}

	content, err := render(vhost, p.cfg.Webroot)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.cfg.SitesAvailable, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", p.cfg.SitesAvailable, err)
	}

	path := p.availablePath(serverName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to write virtual host: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to install virtual host: %w", err)
	}

	if err := p.link(serverName); err != nil {
		return nil, err
	}
	vhost.Enabled = true

	if p.store != nil {
		if err := p.store.PutVirtualHost(vhost); err != nil {
			p.logger.Warn().Err(err).Str("server_name", serverName).Msg("Failed to store virtual host metadata")
		}
	}

	p.logger.Info().
		Str("server_name", serverName).
		Str("proxy_target", cfg.ProxyTarget).
		Msg("Virtual host created")

	return vhost, nil
}

// Delete disables and removes the virtual host. It fails if none exists or
// if the file was not written by burrow.
func (p *NginxProvider) Delete(ctx context.Context, serverName string) error {
	if err := p.requireManaged(serverName); err != nil {
		return err
	}
	path := p.availablePath(serverName)

	if err := p.unlink(serverName); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove virtual host: %w", err)
	}

	if p.store != nil {
		if err := p.store.DeleteVirtualHost(serverName); err != nil && !errors.Is(err, types.ErrNotFound) {
			p.logger.Warn().Err(err).Str("server_name", serverName).Msg("Failed to delete virtual host metadata")
		}
	}

	p.logger.Info().Str("server_name", serverName).Msg("Virtual host removed")
	return nil
}

// Define replaces any existing virtual host
func (p *NginxProvider) Define(ctx context.Context, serverName string, cfg types.VirtualHostConfig) (*types.VirtualHost, error) {
	if out := p.Undefine(ctx, serverName); out.Failed() {
		return nil, out.Err
	}
	return p.Create(ctx, serverName, cfg)
}

// Undefine removes the virtual host, treating absence as success
func (p *NginxProvider) Undefine(ctx context.Context, serverName string) types.Outcome {
	return types.OutcomeOf(p.Delete(ctx, serverName))
}

// IsEnabled reports whether the enabling symlink exists
func (p *NginxProvider) IsEnabled(ctx context.Context, serverName string) (bool, error) {
	if _, err := os.Lstat(p.enabledPath(serverName)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", p.enabledPath(serverName), err)
	}
	return true, nil
}

// requireManaged fails with ErrNotFound or ErrUnmanaged unless burrow owns serverName
func (p *NginxProvider) requireManaged(serverName string) error {
	content, err := p.readManaged(serverName)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("virtual host %s: %w", serverName, types.ErrNotFound)
	}
	return nil
}

// Enable links an existing virtual host into SitesEnabled
func (p *NginxProvider) Enable(ctx context.Context, serverName string) error {
	if err := p.requireManaged(serverName); err != nil {
		return err
	}
	if err := p.link(serverName); err != nil {
		return err
	}
	p.setEnabled(serverName, true)
	return nil
}

// Disable unlinks the virtual host but keeps its config
func (p *NginxProvider) Disable(ctx context.Context, serverName string) error {
	if err := p.requireManaged(serverName); err != nil {
		return err
	}
	if err := p.unlink(serverName); err != nil {
		return err
	}
	p.setEnabled(serverName, false)
	return nil
}

func (p *NginxProvider) setEnabled(serverName string, enabled bool) {
	vhost := p.lookupMetadata(serverName)
	if vhost == nil {
		return
	}
	vhost.Enabled = enabled
	if err := p.store.PutVirtualHost(vhost); err != nil {
		p.logger.Warn().Err(err).Str("server_name", serverName).Msg("Failed to update virtual host metadata")
	}
}

func (p *NginxProvider) link(serverName string) error {
	if err := os.MkdirAll(p.cfg.SitesEnabled, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", p.cfg.SitesEnabled, err)
	}

	link := p.enabledPath(serverName)
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(p.availablePath(serverName), link); err != nil {
		return fmt.Errorf("failed to enable virtual host: %w", err)
	}
	return nil
}

func (p *NginxProvider) unlink(serverName string) error {
	if err := os.Remove(p.enabledPath(serverName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to disable virtual host: %w", err)
	}
	return nil
}

// Validate checks the merged nginx configuration
func (p *NginxProvider) Validate(ctx context.Context) error {
	if _, err := p.runner.Run(ctx, p.cfg.NginxBin, "-t"); err != nil {
		return &types.ProviderError{Provider: "nginx", Op: "validate", Err: err}
	}
	return nil
}

// Reload hot-reloads the serving nginx process
func (p *NginxProvider) Reload(ctx context.Context) error {
	name, args := p.cfg.NginxBin, []string{"-s", "reload"}
	if len(p.cfg.ReloadCmd) > 0 {
		name, args = p.cfg.ReloadCmd[0], p.cfg.ReloadCmd[1:]
	}

	if _, err := p.runner.Run(ctx, name, args...); err != nil {
		return &types.ProviderError{Provider: "nginx", Op: "reload", Err: err}
	}
	return nil
}

// Reinitialize validates and then reloads. A validation failure leaves the
// running configuration untouched.
func (p *NginxProvider) Reinitialize(ctx context.Context) error {
	err := p.Validate(ctx)
	if err == nil {
		err = p.Reload(ctx)
	}

	metrics.ProxyReloads.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		p.logger.Error().Err(err).Msg("Proxy reinitialize failed")
		return err
	}

	p.logger.Info().Msg("Proxy reloaded")
	return nil
}
