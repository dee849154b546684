package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/types"
)

// EnvCloudflareToken overrides dns.cloudflare.api_token
const EnvCloudflareToken = "BURROW_CLOUDFLARE_TOKEN"

// DefaultPath is read when --config is not given
const DefaultPath = "/etc/burrow/burrow.yaml"

// Issuer names
const (
	IssuerCertbot = "certbot"
	IssuerLego    = "lego"
)

// Lock modes
const (
	LockFile   = "file"
	LockMemory = "memory"
)

// Config is the burrow configuration file
type Config struct {
	BaseDomain  string            `yaml:"base_domain"`
	ServerIP    string            `yaml:"server_ip"`
	DataDir     string            `yaml:"data_dir"`
	DNS         DNSConfig         `yaml:"dns"`
	Propagation PropagationConfig `yaml:"propagation"`
	Certs       CertsConfig       `yaml:"certs"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Lock        LockConfig        `yaml:"lock"`
}

type DNSConfig struct {
	Provider   string           `yaml:"provider"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Resolvers  []string         `yaml:"resolvers"`
	TTL        int              `yaml:"ttl"`
	Proxied    bool             `yaml:"proxied"`
}

type CloudflareConfig struct {
	APIToken string `yaml:"api_token"`
	ZoneID   string `yaml:"zone_id"`
	BaseURL  string `yaml:"base_url"`
}

type PropagationConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

type CertsConfig struct {
	Issuer          string        `yaml:"issuer"`
	Email           string        `yaml:"email"`
	LiveDir         string        `yaml:"live_dir"`
	Webroot         string        `yaml:"webroot"`
	CertbotPath     string        `yaml:"certbot_path"`
	CertbotMode     string        `yaml:"certbot_mode"`
	ConfigDir       string        `yaml:"config_dir"`
	Staging         bool          `yaml:"staging"`
	ACMEDirectory   string        `yaml:"acme_directory"`
	RenewBeforeDays int           `yaml:"renew_before_days"`
	RenewInterval   time.Duration `yaml:"renew_interval"`
}

type ProxyConfig struct {
	SitesAvailable string   `yaml:"sites_available"`
	SitesEnabled   string   `yaml:"sites_enabled"`
	NginxBin       string   `yaml:"nginx_bin"`
	ReloadCmd      []string `yaml:"reload_cmd"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LockConfig struct {
	Mode string `yaml:"mode"`
}

// Load reads path, applies defaults and environment overrides, and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and environment overrides, and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset field
func (c *Config) SetDefaults() {
	c.BaseDomain = strings.TrimSuffix(strings.ToLower(c.BaseDomain), ".")

	if c.DataDir == "" {
		c.DataDir = "/var/lib/burrow"
	}

	if c.DNS.Provider == "" {
		c.DNS.Provider = "cloudflare"
	}
	if c.DNS.Cloudflare.BaseURL == "" {
		c.DNS.Cloudflare.BaseURL = "https://api.cloudflare.com/client/v4"
	}

	if c.Propagation.Attempts <= 0 {
		c.Propagation.Attempts = 12
	}
	if c.Propagation.Interval <= 0 {
		c.Propagation.Interval = 10 * time.Second
	}

	if c.Certs.Issuer == "" {
		c.Certs.Issuer = IssuerCertbot
	}
	if c.Certs.ConfigDir == "" {
		c.Certs.ConfigDir = "/etc/letsencrypt"
	}
	if c.Certs.LiveDir == "" {
		if c.Certs.Issuer == IssuerLego {
			c.Certs.LiveDir = filepath.Join(c.DataDir, "certs")
		} else {
			c.Certs.LiveDir = filepath.Join(c.Certs.ConfigDir, "live")
		}
	}
	if c.Certs.Webroot == "" {
		c.Certs.Webroot = "/var/www/letsencrypt"
	}
	if c.Certs.CertbotPath == "" {
		c.Certs.CertbotPath = "certbot"
	}
	if c.Certs.CertbotMode == "" {
		c.Certs.CertbotMode = "webroot"
	}
	if c.Certs.RenewBeforeDays <= 0 {
		c.Certs.RenewBeforeDays = 30
	}
	if c.Certs.RenewInterval <= 0 {
		c.Certs.RenewInterval = 12 * time.Hour
	}

	if c.Proxy.SitesAvailable == "" {
		c.Proxy.SitesAvailable = "/etc/nginx/sites-available"
	}
	if c.Proxy.SitesEnabled == "" {
		c.Proxy.SitesEnabled = "/etc/nginx/sites-enabled"
	}
	if c.Proxy.NginxBin == "" {
		c.Proxy.NginxBin = "nginx"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9469"
	}

	if c.Lock.Mode == "" {
		c.Lock.Mode = LockFile
	}
}

// ApplyEnv lets secrets come from the environment instead of the file
func (c *Config) ApplyEnv() {
	if token := os.Getenv(EnvCloudflareToken); token != "" {
		c.DNS.Cloudflare.APIToken = token
	}
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var problems []string

	if c.BaseDomain == "" {
		problems = append(problems, "base_domain is required")
	}
	if c.ServerIP != "" && net.ParseIP(c.ServerIP) == nil {
		problems = append(problems, fmt.Sprintf("server_ip %q is not an IP address", c.ServerIP))
	}

	switch c.DNS.Provider {
	case "cloudflare":
		if c.DNS.Cloudflare.APIToken == "" {
			problems = append(problems, "dns.cloudflare.api_token is required (or set "+EnvCloudflareToken+")")
		}
		if c.DNS.Cloudflare.ZoneID == "" {
			problems = append(problems, "dns.cloudflare.zone_id is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported dns.provider %q", c.DNS.Provider))
	}

	switch c.Certs.Issuer {
	case IssuerCertbot, IssuerLego:
	default:
		problems = append(problems, fmt.Sprintf("unsupported certs.issuer %q", c.Certs.Issuer))
	}

	switch c.Lock.Mode {
	case LockFile, LockMemory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported lock.mode %q", c.Lock.Mode))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ErrNoConfig is returned by Find when neither an explicit nor the default path exists
var ErrNoConfig = errors.New("no configuration file found")

// Find resolves the config file to load: explicit wins, then DefaultPath
func Find(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath, nil
	}
	return "", fmt.Errorf("%w: pass --config or create %s", ErrNoConfig, DefaultPath)
}
