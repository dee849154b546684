/*
Package config loads the burrow YAML configuration.

Example:

	base_domain: example.com
	server_ip: 203.0.113.10
	dns:
	  cloudflare:
	    zone_id: 023e105f4ecef8ad9ca31a8372d0c353
	certs:
	  email: ops@example.com
	proxy:
	  reload_cmd: [systemctl, reload, nginx]

The Cloudflare token is normally supplied through BURROW_CLOUDFLARE_TOKEN.
*/
package config
