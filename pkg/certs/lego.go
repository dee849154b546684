package certs

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// LetsEncryptProduction is the default ACME directory
	LetsEncryptProduction = lego.LEDirectoryProduction
	// LetsEncryptStaging issues untrusted certificates without production rate limits
	LetsEncryptStaging = lego.LEDirectoryStaging

	resourceFile = "resource.json"
)

// ACMEUser implements the lego registration user
type ACMEUser struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *ACMEUser) GetEmail() string {
	return u.Email
}

func (u *ACMEUser) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *ACMEUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// certResource is what renewal needs beyond the PEM files
type certResource struct {
	Domain        string `json:"domain"`
	Email         string `json:"email"`
	CertURL       string `json:"cert_url"`
	CertStableURL string `json:"cert_stable_url"`
}

// LegoConfig configures the built-in ACME issuer
type LegoConfig struct {
	LiveDir   string
	Webroot   string // HTTP-01 challenge files are written under <Webroot>/.well-known/acme-challenge
	Directory string // ACME directory URL
}

// LegoIssuer obtains certificates in-process over ACME HTTP-01.
// Accounts are persisted in the store, one per contact email.
type LegoIssuer struct {
	cfg   LegoConfig
	store storage.Store

	mu      sync.Mutex
	clients map[string]*lego.Client // by email
}

// NewLegoIssuer creates an ACME issuer writing bundles under cfg.LiveDir
func NewLegoIssuer(cfg LegoConfig, store storage.Store) *LegoIssuer {
	if cfg.Directory == "" {
		cfg.Directory = LetsEncryptProduction
	}
	return &LegoIssuer{
		cfg:     cfg,
		store:   store,
		clients: make(map[string]*lego.Client),
	}
}

func (l *LegoIssuer) Name() string {
	return "acme"
}

func (l *LegoIssuer) Available(ctx context.Context) error {
	if l.cfg.Webroot == "" {
		return types.Validationf("acme issuer requires a webroot directory")
	}
	challengeDir := filepath.Join(l.cfg.Webroot, ".well-known", "acme-challenge")
	if err := os.MkdirAll(challengeDir, 0755); err != nil {
		return types.Validationf("acme webroot not writable: %v", err)
	}
	return nil
}

func (l *LegoIssuer) Issue(ctx context.Context, fullDomain, email string) error {
	client, err := l.clientFor(email)
	if err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "register", Err: err}
	}

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{fullDomain},
		Bundle:  false,
	})
	if err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "obtain", Err: err}
	}

	if err := l.save(fullDomain, email, res); err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "obtain", Err: err}
	}

	log.Logger.Info().
		Str("component", "certs.acme").
		Str("domain", fullDomain).
		Msg("Certificate obtained")

	return nil
}

func (l *LegoIssuer) Renew(ctx context.Context, fullDomain string) error {
	meta, res, err := l.load(fullDomain)
	if err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "renew", Err: err}
	}

	client, err := l.clientFor(meta.Email)
	if err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "register", Err: err}
	}

	renewed, err := client.Certificate.Renew(*res, false, false, "")
	if err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "renew", Err: err}
	}

	if err := l.save(fullDomain, meta.Email, renewed); err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "renew", Err: err}
	}

	log.Logger.Info().
		Str("component", "certs.acme").
		Str("domain", fullDomain).
		Msg("Certificate renewed")

	return nil
}

func (l *LegoIssuer) Remove(ctx context.Context, fullDomain string) error {
	if err := os.RemoveAll(filepath.Join(l.cfg.LiveDir, fullDomain)); err != nil {
		return &types.ProviderError{Provider: l.Name(), Op: "delete", Err: err}
	}
	return nil
}

// clientFor returns a registered client for email, creating the account on first use
func (l *LegoIssuer) clientFor(email string) (*lego.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if client, ok := l.clients[email]; ok {
		return client, nil
	}

	user, err := l.loadUser(email)
	if err != nil {
		return nil, err
	}

	config := lego.NewConfig(user)
	config.CADirURL = l.cfg.Directory
	config.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}

	provider, err := webroot.NewHTTPProvider(l.cfg.Webroot)
	if err != nil {
		return nil, fmt.Errorf("failed to create webroot provider: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		return nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}

	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("failed to register ACME account: %w", err)
		}
		user.Registration = reg

		account, err := encodeAccount(user, l.cfg.Directory)
		if err != nil {
			return nil, err
		}
		if err := l.store.SaveACMEAccount(account); err != nil {
			return nil, fmt.Errorf("failed to save ACME account: %w", err)
		}

		log.Logger.Info().
			Str("component", "certs.acme").
			Str("email", email).
			Msg("Registered ACME account")
	}

	l.clients[email] = client
	return client, nil
}

// loadUser restores the stored account for email, or generates a fresh unregistered key
func (l *LegoIssuer) loadUser(email string) (*ACMEUser, error) {
	account, err := l.store.GetACMEAccount(email)
	switch {
	case err == nil && account.Directory == l.cfg.Directory:
		return decodeAccount(account)
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return nil, fmt.Errorf("failed to load ACME account: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &ACMEUser{Email: email, key: key}, nil
}

func encodeAccount(user *ACMEUser, directory string) (*storage.ACMEAccount, error) {
	key, ok := user.key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported account key type %T", user.key)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account key: %w", err)
	}

	reg, err := json.Marshal(user.Registration)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration: %w", err)
	}

	return &storage.ACMEAccount{
		Email:        user.Email,
		KeyPEM:       pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}),
		Registration: reg,
		Directory:    directory,
	}, nil
}

func decodeAccount(account *storage.ACMEAccount) (*ACMEUser, error) {
	block, _ := pem.Decode(account.KeyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode account key for %s", account.Email)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account key: %w", err)
	}

	user := &ACMEUser{Email: account.Email, key: key}
	if len(account.Registration) > 0 && string(account.Registration) != "null" {
		var reg registration.Resource
		if err := json.Unmarshal(account.Registration, &reg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal registration: %w", err)
		}
		user.Registration = &reg
	}

	return user, nil
}

func (l *LegoIssuer) save(fullDomain, email string, res *certificate.Resource) error {
	dir := filepath.Join(l.cfg.LiveDir, fullDomain)

	fullChain := append(append([]byte{}, res.Certificate...), res.IssuerCertificate...)
	if err := writeBundle(dir, res.Certificate, res.PrivateKey, fullChain); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(certResource{
		Domain:        fullDomain,
		Email:         email,
		CertURL:       res.CertURL,
		CertStableURL: res.CertStableURL,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal certificate resource: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, resourceFile), meta, 0600)
}

func (l *LegoIssuer) load(fullDomain string) (*certResource, *certificate.Resource, error) {
	dir := filepath.Join(l.cfg.LiveDir, fullDomain)

	raw, err := os.ReadFile(filepath.Join(dir, resourceFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate resource: %w", err)
	}

	var meta certResource
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate resource: %w", err)
	}

	paths := BundlePaths(l.cfg.LiveDir, fullDomain)
	cert, err := os.ReadFile(paths.Cert)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	key, err := os.ReadFile(paths.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	chain, err := os.ReadFile(paths.FullChain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read full chain: %w", err)
	}

	issuer := chain
	if bytes.HasPrefix(chain, cert) {
		issuer = chain[len(cert):]
	}

	return &meta, &certificate.Resource{
		Domain:            meta.Domain,
		CertURL:           meta.CertURL,
		CertStableURL:     meta.CertStableURL,
		PrivateKey:        key,
		Certificate:       cert,
		IssuerCertificate: issuer,
	}, nil
}
