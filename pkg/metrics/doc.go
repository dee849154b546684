/*
Package metrics defines burrow's Prometheus metrics and the /health and
/ready handlers served by "burrow serve".

All metrics are registered on the default registry at package init.

# Provisioning

	burrow_define_total{result}                 defines by outcome
	burrow_define_duration_seconds              full pipeline latency
	burrow_define_step_failures_total{step}     which step failed
	burrow_rollbacks_total                      rollbacks performed
	burrow_undefine_warnings_total{step}        sub-steps that failed
	burrow_propagation_attempts                 resolver polls per wait

# Upstreams

	burrow_dns_api_requests_total{method,status}
	burrow_proxy_reloads_total{result}

# Inventory

	burrow_subdomains_active                    fully active subdomains
	burrow_certificate_days_left{domain}
	burrow_certificate_renewals_total{result}

Inventory gauges are refreshed by Collector on an interval. Provisioning
metrics are recorded inline, usually with a Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DefineDuration)

# Health

UpdateComponent records the status of "dns", "certs" and "proxy". /health
is 200 unless some component reported unhealthy; /ready additionally
requires every critical component to have reported healthy.
*/
package metrics
