package certs

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// File names inside a bundle directory, matching the certbot live layout
const (
	CertFile      = "cert.pem"
	KeyFile       = "privkey.pem"
	FullChainFile = "fullchain.pem"
)

// BundlePaths returns where the bundle for fullDomain lives under liveDir
func BundlePaths(liveDir, fullDomain string) types.CertificatePaths {
	dir := filepath.Join(liveDir, fullDomain)
	return types.CertificatePaths{
		Cert:      filepath.Join(dir, CertFile),
		Key:       filepath.Join(dir, KeyFile),
		FullChain: filepath.Join(dir, FullChainFile),
	}
}

// bundlePresent reports whether all three files exist
func bundlePresent(paths types.CertificatePaths) bool {
	for _, p := range []string{paths.Cert, paths.Key, paths.FullChain} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// ParseExpiry returns NotAfter of the first certificate in pemData
func ParseExpiry(pemData []byte) (time.Time, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return time.Time{}, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert.NotAfter, nil
}

// DaysLeft counts whole days from now until expiresAt; negative once expired
func DaysLeft(expiresAt, now time.Time) int {
	return int(math.Floor(expiresAt.Sub(now).Hours() / 24))
}

// writeBundle atomically replaces the bundle files in dir
func writeBundle(dir string, cert, key, fullChain []byte) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CertFile, cert, 0644},
		{FullChainFile, fullChain, 0644},
		{KeyFile, key, 0600},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("failed to install %s: %w", f.name, err)
		}
	}

	return nil
}
