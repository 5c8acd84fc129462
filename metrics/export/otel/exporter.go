package otel

import (
	"context"
	"errors"
	"fmt"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
	"github.com/MrEthical07/ledgerAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() ledgerAuth.MetricsSnapshot
	AuditDropped() uint64
}

// series binds a client metric ID to the attribute set it is observed with.
type series struct {
	id    ledgerAuth.MetricID
	attrs metric.ObserveOption
}

// OTelExporter publishes client metrics as observable instruments labelled by
// flow, step and outcome. Values are read from the snapshot on each
// collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	flowOps    metric.Int64ObservableCounter
	flowSeries []series

	rejections      metric.Int64ObservableCounter
	rejectionSeries []series

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	bucketAttrs    [8]metric.ObserveOption

	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *ledgerAuth.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource is NewOTelExporter for any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var err error

	if e.flowOps, err = meter.Int64ObservableCounter(internaldefs.FlowOperationsName,
		metric.WithDescription(internaldefs.FlowOperationsHelp)); err != nil {
		return nil, fmt.Errorf("create %s: %w", internaldefs.FlowOperationsName, err)
	}
	for _, def := range internaldefs.FlowCounters {
		e.flowSeries = append(e.flowSeries, series{id: def.ID, attrs: metric.WithAttributes(
			attribute.String("flow", def.Flow),
			attribute.String("step", def.Step),
			attribute.String("outcome", def.Outcome),
		)})
	}

	if e.rejections, err = meter.Int64ObservableCounter(internaldefs.ClientRejectionsName,
		metric.WithDescription(internaldefs.ClientRejectionsHelp)); err != nil {
		return nil, fmt.Errorf("create %s: %w", internaldefs.ClientRejectionsName, err)
	}
	for _, def := range internaldefs.RejectionCounters {
		e.rejectionSeries = append(e.rejectionSeries, series{id: def.ID,
			attrs: metric.WithAttributes(attribute.String("reason", def.Reason))})
	}

	bucketName := internaldefs.BackendLatencyName + "_bucket"
	if e.latencyBuckets, err = meter.Int64ObservableGauge(bucketName,
		metric.WithDescription("Cumulative backend latency bucket counts by upper bound.")); err != nil {
		return nil, fmt.Errorf("create %s: %w", bucketName, err)
	}
	for i, le := range internaldefs.LatencyBounds {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}
	countName := internaldefs.BackendLatencyName + "_count"
	if e.latencyCount, err = meter.Int64ObservableGauge(countName,
		metric.WithDescription("Backend calls timed.")); err != nil {
		return nil, fmt.Errorf("create %s: %w", countName, err)
	}

	if e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("create %s: %w", internaldefs.AuditDroppedName, err)
	}

	e.registration, err = meter.RegisterCallback(e.observe,
		e.flowOps, e.rejections, e.latencyBuckets, e.latencyCount, e.auditDropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.flowSeries {
		o.ObserveInt64(e.flowOps, int64(snapshot.Counters[s.id]), s.attrs)
	}
	for _, s := range e.rejectionSeries {
		o.ObserveInt64(e.rejections, int64(snapshot.Counters[s.id]), s.attrs)
	}
	if _, ok := snapshot.Histograms[ledgerAuth.MetricBackendLatency]; ok {
		cumulative := internaldefs.CumulativeLatency(snapshot)
		for i, v := range cumulative {
			o.ObserveInt64(e.latencyBuckets, int64(v), e.bucketAttrs[i])
		}
		o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
