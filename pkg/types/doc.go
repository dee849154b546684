/*
Package types defines the data model shared by every burrow package.

A subdomain in burrow is never stored as a single object. It is the
correlation of three independently owned pieces of state:

	┌──────────────────────── SUBDOMAIN "app" ────────────────────────┐
	│                                                                  │
	│   AddressRecord        CertificateBundle        VirtualHost      │
	│   app.example.com  →   cert.pem / privkey.pem   server_name      │
	│   A 203.0.113.10       fullchain.pem            proxy 127.0.0.1  │
	│   (DNS provider)       (certificate provider)   (proxy provider) │
	│                                                                  │
	└───────────────────────────────┬──────────────────────────────────┘
	                                ▼
	                         SubdomainInfo
	               (computed on demand, never persisted)

# Labels

A label is either a DNS label (1-63 characters of [A-Za-z0-9-], no leading
or trailing hyphen) or the Apex sentinel "@" that stands for the base domain.
FullDomain and LabelFor convert between labels and fully-qualified names.

# Errors

Errors are classified with sentinels that callers match with errors.Is:

  - ErrValidation: malformed label or missing required field
  - ErrAlreadyExists / ErrNotFound: raw provider CRUD conflicts
  - ErrPropagationTimeout: DNS never returned the expected address

Upstream failures are wrapped in ProviderError, and define failures in
StepError, which names the pipeline step that failed.

Idempotent removes report an Outcome instead of an error, so that "already
absent" is a value rather than a swallowed error:

	out := types.OutcomeOf(provider.Delete(ctx, label))
	if out.Failed() {
		return out.Err
	}
*/
package types
