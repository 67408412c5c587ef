// Package otel provides OpenTelemetry metric exporter bindings for the core
// counters and histograms.
//
// NewOTelExporter registers Int64ObservableCounter instruments for each
// metric and Int64ObservableGauge per histogram bucket. A single callback
// reads a metrics snapshot on each collection cycle. Callers own the
// MeterProvider; this package only registers against a supplied Meter.
package otel
