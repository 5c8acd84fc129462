package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
	"github.com/MrEthical07/ledgerAuth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() ledgerAuth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders client metrics in Prometheus text format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from client.
func NewPrometheusExporter(client *ledgerAuth.Client) *PrometheusExporter {
	if client == nil {
		return &PrometheusExporter{}
	}
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder

	header(&b, internaldefs.FlowOperationsName, internaldefs.FlowOperationsHelp, "counter")
	for _, def := range internaldefs.FlowCounters {
		sample(&b, internaldefs.FlowOperationsName, snapshot.Counters[def.ID],
			"flow", def.Flow, "step", def.Step, "outcome", def.Outcome)
	}

	header(&b, internaldefs.ClientRejectionsName, internaldefs.ClientRejectionsHelp, "counter")
	for _, def := range internaldefs.RejectionCounters {
		sample(&b, internaldefs.ClientRejectionsName, snapshot.Counters[def.ID], "reason", def.Reason)
	}

	if _, ok := snapshot.Histograms[ledgerAuth.MetricBackendLatency]; ok {
		cumulative := internaldefs.CumulativeLatency(snapshot)
		header(&b, internaldefs.BackendLatencyName, internaldefs.BackendLatencyHelp, "histogram")
		for i, le := range internaldefs.LatencyBounds {
			sample(&b, internaldefs.BackendLatencyName+"_bucket", cumulative[i], "le", le)
		}
		sample(&b, internaldefs.BackendLatencyName+"_count", cumulative[len(cumulative)-1])
	}

	header(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	sample(&b, internaldefs.AuditDroppedName, dropped)

	return b.String()
}

func header(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

// sample writes one series line. labels alternate name and value.
func sample(b *strings.Builder, name string, value uint64, labels ...string) {
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteByte('{')
		for i := 0; i+1 < len(labels); i += 2 {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(labels[i])
			b.WriteString(`="`)
			b.WriteString(escapeLabel(labels[i+1]))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)
)

func escapeHelp(help string) string   { return helpEscaper.Replace(help) }
func escapeLabel(value string) string { return labelEscaper.Replace(value) }
