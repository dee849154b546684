package certs

import "context"

// Issuer obtains, renews and removes certificate bundles.
// Bundles must land in the live directory layout read by BundlePaths.
type Issuer interface {
	Name() string

	// Available reports whether the issuance path can be used at all
	Available(ctx context.Context) error

	Issue(ctx context.Context, fullDomain, email string) error
	Renew(ctx context.Context, fullDomain string) error
	Remove(ctx context.Context, fullDomain string) error
}
