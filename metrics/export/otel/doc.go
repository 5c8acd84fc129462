// Package otel publishes client metrics through an OpenTelemetry meter.
//
// [NewOTelExporter] registers one observable counter for flow operations,
// with flow, step and outcome attributes, one for cross-flow rejections keyed
// by reason, and cumulative bucket gauges keyed by le for backend latency.
// Values are read from the client's snapshot on every collection.
package otel
