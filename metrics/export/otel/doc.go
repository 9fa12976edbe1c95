// Package otel publishes authcore metrics through OpenTelemetry.
//
// [NewExporter] creates one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per latency bucket, all fed by a single callback that
// reads the engine snapshot. The caller owns the MeterProvider.
package otel
