package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
	otelexport "github.com/MrEthical07/ledgerAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/ledgerAuth/metrics/export/prometheus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const (
	metricsPrometheus = "prometheus"
	metricsOTel       = "otel"
)

// metricsDump writes what one command did to the client's counters once it
// has finished.
type metricsDump struct {
	format string
	path   string
	stderr io.Writer

	prom *promexport.PrometheusExporter

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	otel     *otelexport.OTelExporter
}

func validMetricsFormat(format string) bool {
	switch format {
	case "", metricsPrometheus, metricsOTel:
		return true
	}
	return false
}

func newMetricsDump(format, path string, client *ledgerAuth.Client, stderr io.Writer) (*metricsDump, error) {
	d := &metricsDump{format: format, path: path, stderr: stderr}
	switch format {
	case metricsPrometheus:
		d.prom = promexport.NewPrometheusExporter(client)
	case metricsOTel:
		d.reader = sdkmetric.NewManualReader()
		d.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(d.reader))
		exp, err := otelexport.NewOTelExporter(d.provider.Meter("github.com/MrEthical07/ledgerAuth/cmd/ledgerauth"), client)
		if err != nil {
			return nil, err
		}
		d.otel = exp
	default:
		return nil, fmt.Errorf("unknown metrics format %q", format)
	}
	return d, nil
}

func (d *metricsDump) write(ctx context.Context) error {
	var text string
	switch d.format {
	case metricsPrometheus:
		text = d.prom.Render()
	case metricsOTel:
		var rm metricdata.ResourceMetrics
		if err := d.reader.Collect(ctx, &rm); err != nil {
			return fmt.Errorf("collect metrics: %w", err)
		}
		text = renderResourceMetrics(rm)
	}

	if d.path == "" {
		_, err := io.WriteString(d.stderr, text)
		return err
	}
	return os.WriteFile(d.path, []byte(text), 0o600)
}

func (d *metricsDump) close(ctx context.Context) {
	if d.otel != nil {
		_ = d.otel.Close()
	}
	if d.provider != nil {
		_ = d.provider.Shutdown(ctx)
	}
}

// renderResourceMetrics prints one line per data point as name{attrs} value.
func renderResourceMetrics(rm metricdata.ResourceMetrics) string {
	var b strings.Builder
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				b.WriteString(m.Name)
				if dp.Attributes.Len() > 0 {
					b.WriteString("{" + dp.Attributes.Encoded(attribute.DefaultEncoder()) + "}")
				}
				fmt.Fprintf(&b, " %d\n", dp.Value)
			}
		}
	}
	return b.String()
}
