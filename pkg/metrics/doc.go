/*
Package metrics exposes Prometheus collectors for the scheduler: job
and agent populations, per-host load against capacity, event loop
throughput, tick latency and the exclusivity lockout flag. The /metrics
endpoint is mounted on the control interface's HTTP mux.
*/
package metrics
