/*
Package dnsprovider manages address records for subdomains of one base
domain, and checks what public resolvers return for them.

Provider is the subdomain-facing view: labels in, records out. It sits on an
API, implemented for Cloudflare by CloudflareClient. Resolver sends
raw A/AAAA queries with miekg/dns straight to the configured servers, so a
propagation check is not answered from the local stub cache.

Only A and AAAA records are managed. The type is derived from the address:

	203.0.113.10  -> A
	2001:db8::10  -> AAAA
*/
package dnsprovider
