/*
Package host tracks the fleet of configured execution hosts and their
current agent load. Selection is first-fit in registration order, which
keeps scheduling decisions deterministic and testable. The registry is
rebuilt from the main config file on SIGHUP.
*/
package host
