/*
Package health runs the checks behind "burrow serve" /health and /ready and
"burrow check".

Three checkers are provided:

	TCPChecker    dials a backend such as 127.0.0.1:3000
	HTTPChecker   requests the public URL of a subdomain and reports the
	              remaining validity of the certificate it was served
	FuncChecker   wraps an upstream call such as the Cloudflare token check

Monitor runs named checkers on an interval. A component is reported
unhealthy only after Config.Retries consecutive failures, so a single slow
API response does not flap readiness.
*/
package health
