/*
Package meta catalogs agent types: the name, launch command, per-host
concurrency cap and flags read from each mods-enabled config file. A
type flagged EXCLUSIVE forces the scheduler into lockout before one of
its jobs may run.
*/
package meta
