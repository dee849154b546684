package types

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Apex is the label that denotes the base domain itself
const Apex = "@"

// DefaultBackendPort is reported when a virtual host's proxy target carries no usable port
const DefaultBackendPort = 80

// FullDomain derives the fully-qualified hostname for a label under baseDomain
func FullDomain(label, baseDomain string) string {
	if label == Apex || label == "" {
		return baseDomain
	}
	return label + "." + baseDomain
}

// LabelFor maps a full domain back to its label under baseDomain.
// The second return value is false when name is outside baseDomain.
func LabelFor(name, baseDomain string) (string, bool) {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	base := strings.TrimSuffix(strings.ToLower(baseDomain), ".")

	if name == base {
		return Apex, true
	}
	if strings.HasSuffix(name, "."+base) {
		return strings.TrimSuffix(name, "."+base), true
	}
	return "", false
}

// RecordType is the kind of DNS address record
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

// RecordTypeFor picks A or AAAA for an address literal
func RecordTypeFor(ip string) RecordType {
	if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() == nil {
		return RecordTypeAAAA
	}
	return RecordTypeA
}

// IsAddress reports whether t is an address record kind this system manages
func (t RecordType) IsAddress() bool {
	return t == RecordTypeA || t == RecordTypeAAAA
}

// AddressRecord is a DNS record mapping a full domain to an IP address
type AddressRecord struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"` // Full domain
	Type    RecordType `json:"type"`
	Content string     `json:"content"` // IPv4 or IPv6 literal
	TTL     int        `json:"ttl"`
	Proxied bool       `json:"proxied"`
}

// RecordConfig is the desired state of an address record
type RecordConfig struct {
	IP      string
	TTL     int
	Proxied bool
}

// CertificatePaths locates the files of a certificate bundle
type CertificatePaths struct {
	Cert      string `json:"cert"`
	Key       string `json:"key"`
	FullChain string `json:"fullchain"`
}

// CertificateBundle describes the certificate for one full domain.
// Exists is true only when all three files are present.
type CertificateBundle struct {
	Exists     bool             `json:"exists"`
	FullDomain string           `json:"full_domain"`
	ExpiresAt  time.Time        `json:"expires_at"`
	DaysLeft   int              `json:"days_left"`
	Paths      CertificatePaths `json:"paths"`
}

// VirtualHost is one reverse-proxy server block
type VirtualHost struct {
	ServerName  string `json:"server_name"`
	ProxyTarget string `json:"proxy_target"` // host:port
	BackendPort int    `json:"backend_port"`
	TLSCertPath string `json:"tls_cert_path"`
	TLSKeyPath  string `json:"tls_key_path"`
	Enabled     bool   `json:"enabled"`
}

// VirtualHostConfig is the desired state of a virtual host
type VirtualHostConfig struct {
	ProxyTarget string
	TLSCertPath string
	TLSKeyPath  string
}

// PortFromTarget extracts the port of a host:port proxy target, falling back to DefaultBackendPort
func PortFromTarget(target string) int {
	target = strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "https://")
	_, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return DefaultBackendPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return DefaultBackendPort
	}
	return port
}

// DefineConfig is the caller-supplied desired state for a subdomain
type DefineConfig struct {
	IP      string `json:"ip" yaml:"ip"`
	Port    int    `json:"port" yaml:"port"`
	TTL     int    `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty"`

	// Proxied is nil when the caller leaves it to the configured default
	Proxied *bool `json:"proxied,omitempty" yaml:"proxied,omitempty"`
}

// IsProxied reports whether the record should go through the DNS provider's edge
func (c DefineConfig) IsProxied() bool {
	return c.Proxied != nil && *c.Proxied
}

// DNSStatus is the observed state of a subdomain's address record
type DNSStatus struct {
	Exists bool           `json:"exists"`
	Record *AddressRecord `json:"record,omitempty"`
}

// CertStatus is the observed state of a subdomain's certificate
type CertStatus struct {
	Exists    bool              `json:"exists"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	DaysLeft  int               `json:"days_left"`
	Paths     *CertificatePaths `json:"paths,omitempty"`
}

// ProxyStatus is the observed state of a subdomain's virtual host
type ProxyStatus struct {
	Exists      bool   `json:"exists"`
	Enabled     bool   `json:"enabled"`
	ProxyTarget string `json:"proxy_target,omitempty"`
}

// SubdomainInfo is computed on demand from all three providers and never persisted
type SubdomainInfo struct {
	Label       string      `json:"label"`
	FullDomain  string      `json:"full_domain"`
	IP          string      `json:"ip,omitempty"`
	Port        int         `json:"port,omitempty"`
	DNSStatus   DNSStatus   `json:"dns_status"`
	CertStatus  CertStatus  `json:"cert_status"`
	ProxyStatus ProxyStatus `json:"proxy_status"`
	FullyActive bool        `json:"fully_active"`
}

// NewSubdomainInfo correlates provider observations into a SubdomainInfo
func NewSubdomainInfo(label, fullDomain string, record *AddressRecord, bundle *CertificateBundle, vhost *VirtualHost) *SubdomainInfo {
	info := &SubdomainInfo{
		Label:      label,
		FullDomain: fullDomain,
	}

	if record != nil {
		info.IP = record.Content
		info.DNSStatus = DNSStatus{Exists: true, Record: record}
	}

	if bundle != nil && bundle.Exists {
		paths := bundle.Paths
		info.CertStatus = CertStatus{
			Exists:    true,
			ExpiresAt: bundle.ExpiresAt,
			DaysLeft:  bundle.DaysLeft,
			Paths:     &paths,
		}
	}

	if vhost != nil {
		info.ProxyStatus = ProxyStatus{
			Exists:      true,
			Enabled:     vhost.Enabled,
			ProxyTarget: vhost.ProxyTarget,
		}
		info.Port = vhost.BackendPort
		if info.Port == 0 {
			info.Port = PortFromTarget(vhost.ProxyTarget)
		}
	}

	info.FullyActive = info.DNSStatus.Exists &&
		info.CertStatus.Exists &&
		info.ProxyStatus.Exists &&
		info.ProxyStatus.Enabled

	return info
}
