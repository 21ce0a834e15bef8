// Package otel exposes client metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. The caller owns the
// MeterProvider.
package otel
