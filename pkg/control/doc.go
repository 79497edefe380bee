/*
Package control serves the operator interface on the configured TCP
port.

The protocol is newline-delimited text, friendly to telnet and nc:

	status              one-line scheduler summary
	agents              one line per live agent
	hosts               one line per configured host
	submit TYPE [P] [PAYLOAD]   persist a new job
	reload              reload configuration (same as SIGHUP)
	database            force a queue sync (same as the periodic check)
	verbose N           change log verbosity at runtime
	close | stop        begin graceful shutdown
	quit | exit         close this connection

Commands never touch scheduler state directly. Mutations are enqueued
as events and reads travel as Query events answered on the loop
thread. Prometheus metrics are served over HTTP one port above the
control port.
*/
package control
