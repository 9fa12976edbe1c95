// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Counters are named authcore_*_total; the one histogram is
// authcore_validate_latency_seconds. Nothing is registered globally: mount
// [Exporter.Handler] where the process serves /metrics.
package prometheus
