/*
Package storage persists the metadata burrow cannot read back from upstream
systems in structured form.

Two buckets live in <data_dir>/burrow.db:

	acme_accounts    keyed by contact email; private key and registration
	                 of the in-process ACME issuer
	virtual_hosts    keyed by server name; the VirtualHost that rendered
	                 each nginx config file

Subdomain state itself is never stored here. It is always derived from the
DNS provider, the certificate directory and the nginx config files.

Each call opens the database, runs one bolt transaction and closes it again.
Values are JSON. Missing keys return an error wrapping types.ErrNotFound.
*/
package storage
