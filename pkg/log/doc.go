/*
Package log provides structured logging for fosched built on zerolog.

The package exposes a global logger configured once at startup from the
command line (--verbose, --log) plus helpers for creating child loggers
scoped to a component, a job, or an agent pid. The operator-facing
verbosity integer maps onto zerolog levels; "verbose 2" on the control
interface flips the daemon to debug logging without a restart.
*/
package log
