/*
Package log provides structured logging for burrow using zerolog.

A single package-level Logger is configured once by Init, normally from the
CLI's --log-level and --log-json flags. Packages derive child loggers that
carry the fields operators filter on:

	logger := log.WithComponent("proxy")
	logger.Info().Str("domain", fqdn).Msg("virtual host written")

	logger = log.WithSubdomain("reconciler", "app", "app.example.com")
	logger.Warn().Err(err).Msg("rollback left state behind")

Console output is used by default; JSON output is meant for `burrow serve`
under a process supervisor.

Log levels:
  - debug: provider requests, propagation attempts
  - info: pipeline steps, renewals
  - warn: undefine warnings, failed rollbacks
  - error: define failures
*/
package log
