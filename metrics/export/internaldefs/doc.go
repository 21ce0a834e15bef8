// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by every exporter, so Prometheus and OTel report the same
// series.
package internaldefs
