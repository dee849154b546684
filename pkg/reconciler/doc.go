/*
Package reconciler keeps a subdomain's DNS record, TLS certificate and
reverse-proxy virtual host consistent with each other.

A subdomain is identified by a single DNS label under the configured base
domain. The reconciler never stores subdomain state of its own: every read is
computed from the three providers, and every write is a sequence of provider
calls that either completes or is rolled back.

# Define Pipeline

Define is idempotent. Each provider step is an upsert: the provider removes
whatever it holds for the name (absence is fine) and creates it anew. The
layers are built in dependency order:

	┌──────────────────────────────────────────────────────────┐
	│                   Define(label, cfg)                      │
	└──────────────┬───────────────────────────────────────────┘
	               │
	               ▼
	┌─────────────────────────┐
	│ creating DNS record     │  A or AAAA, from the address family
	└──────────┬──────────────┘
	           ▼
	┌─────────────────────────┐
	│ waiting for DNS         │  skipped for proxied records
	│ propagation             │
	└──────────┬──────────────┘
	           ▼
	┌─────────────────────────┐
	│ creating SSL            │  HTTP-01 needs the name to resolve
	│ certificate             │
	└──────────┬──────────────┘
	           ▼
	┌─────────────────────────┐
	│ creating proxy          │  127.0.0.1:<port>, TLS from the bundle
	│ configuration           │
	└──────────┬──────────────┘
	           ▼
	┌─────────────────────────┐
	│ reloading proxy         │
	└─────────────────────────┘

If any step fails, the reconciler undefines proxy, certificate and DNS for
the label (ignoring their outcomes) and returns a *types.StepError naming the
step. Rollback runs on a context detached from the caller's cancellation, so
an interrupted define still cleans up.

# Undefine

Undefine removes the layers in reverse order and reloads the proxy. Each
sub-step yields a types.Outcome; a step that finds nothing to remove is
not_found, which counts as success. Failures are collected in the returned
*Report as warnings instead of aborting, so one broken layer never leaves the
others behind.

# Reads

GetInfo queries the three providers concurrently and correlates the results
into a types.SubdomainInfo. List returns only fully active subdomains: DNS
record present, certificate present, virtual host present and enabled.
ListAll also includes partial ones, which is how leftovers of a crashed run
are found.

# Concurrency

Mutations on the same label are serialized through a lock.Locker. The
default is an in-process lock; lock.File extends it across processes so two
CLI invocations cannot interleave. Different labels never block each other.

# Renewal

Renewer runs RenewAll on an interval. Certificates inside the renewal window
are renewed through the certificate provider, and the proxy is reloaded once
per pass when anything changed.

# Usage

	rec := reconciler.NewReconciler(reconciler.Config{
		BaseDomain:          "example.com",
		PropagationAttempts: 12,
		DefaultEmail:        "ops@example.com",
	}, dnsProvider, certProvider, proxyProvider,
		reconciler.WithLocker(lock.NewMemory()),
	)

	info, err := rec.Define(ctx, "api", types.DefineConfig{
		IP:   "203.0.113.10",
		Port: 3000,
	})
	if reconciler.IsStep(err, reconciler.StepPropagation) {
		// record never resolved; everything has been rolled back
	}

	report, err := rec.Undefine(ctx, "api")
	for _, w := range report.Warnings() {
		log.Logger.Warn().Err(w).Msg("undefine left something behind")
	}
*/
package reconciler
