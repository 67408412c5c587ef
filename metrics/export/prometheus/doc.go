// Package prometheus renders the core metrics in Prometheus text exposition
// format. Counter names are prefixed authcore_*_total; the single histogram
// is authcore_verify_latency_seconds. Nothing is registered globally;
// callers mount the Handler.
package prometheus
