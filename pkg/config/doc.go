/*
Package config loads the scheduler's configuration.

The main file, <setup>/fosched.yaml, names the control port, the agent
directory, the privilege-drop user and the host fleet; each host entry
is the compact "<address> <dir> <max>" form, with the localhost entry
inheriting the configured agent directory. Agent types are discovered
from <setup>/mods-enabled/<name>/<name>.conf, one file per enabled
type, each requiring a default group with name, command and max, plus
an optional special list (EXCLUSIVE is the one recognized element).

Per-entry failures are logged and skipped; startup proceeds as long as
at least one host and one meta-agent were admitted. A filesystem
watcher can additionally enqueue CONFIG_RELOAD when files change,
mirroring SIGHUP.
*/
package config
