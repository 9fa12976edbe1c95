// Package internaldefs holds the series names and bucket bounds shared by the
// Prometheus and OpenTelemetry exporters, so both report identical names.
package internaldefs
