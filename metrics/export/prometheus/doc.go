// Package prometheus exposes client metrics to Prometheus.
//
// [Collector] reads a [minidrive.MetricsSnapshot] on every scrape and emits
// const metrics, so nothing is registered in the global registry unless the
// caller does it. [Handler] is the shortcut used by the CLI's
// --metrics-addr flag.
package prometheus
