// Package metrics provides lock-free counters and latency histograms.
//
// Counters live in cache-line-padded uint64 slots and are incremented with
// [sync/atomic.AddUint64]. Histograms use 8 fixed buckets (≤5ms … +Inf).
// The write path does not allocate.
//
// Metric names and export (Prometheus, OTel) live elsewhere; this package
// only knows slot indexes.
package metrics
