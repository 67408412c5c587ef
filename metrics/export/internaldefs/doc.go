// Package internaldefs exposes stable metric name definitions shared by the
// exporter implementations. Counter and histogram definitions live here so
// that the Prometheus and OTel exporters render identical names and bucket
// boundaries.
package internaldefs
