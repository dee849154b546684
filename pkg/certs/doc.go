// Package certs manages TLS certificate bundles on disk and the ACME issuers
// that produce them.
//
// A bundle lives at <live_dir>/<fqdn>/ as cert.pem, privkey.pem and
// fullchain.pem. CertbotIssuer shells out to certbot; LegoIssuer talks ACME
// in-process and keeps its account in the bolt store.
package certs
