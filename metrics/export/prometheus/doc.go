// Package prometheus renders client metrics in Prometheus text exposition
// format.
//
// Flow counters share the ledgerauth_flow_operations_total family and carry
// flow, step and outcome labels; busy, abandoned, validation and transport
// stops are ledgerauth_client_rejections_total{reason}. Nothing is registered
// globally; mount [PrometheusExporter.Handler] where you need it.
package prometheus
