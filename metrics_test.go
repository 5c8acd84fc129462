package ledgerAuth

import (
	"context"
	"testing"
	"time"
)

func TestMetricsDisabledIsNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLogout)
	m.Observe(MetricBackendLatency, time.Millisecond)
	if m.Value(MetricLogout) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if s := m.Snapshot(); len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	if nilMetrics.Enabled() || nilMetrics.Value(MetricLogout) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsCountersAndHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricSignupSuccess)
	m.Inc(MetricSignupSuccess)
	m.Inc(metricIDCount)
	m.Observe(MetricBackendLatency, 3*time.Millisecond)
	m.Observe(MetricBackendLatency, 2*time.Second)
	m.Observe(MetricSignupSuccess, time.Millisecond)

	s := m.Snapshot()
	if s.Counters[MetricSignupSuccess] != 2 {
		t.Fatalf("expected 2, got %d", s.Counters[MetricSignupSuccess])
	}
	buckets := s.Histograms[MetricBackendLatency]
	if len(buckets) != histBucketCount || buckets[0] != 1 || buckets[histBucketCount-1] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if len(s.Histograms) != 1 {
		t.Fatal("only backend latency has a histogram")
	}
}

func TestBucketIndex(t *testing.T) {
	cases := map[time.Duration]int{
		0:                      0,
		5 * time.Millisecond:   0,
		6 * time.Millisecond:   1,
		25 * time.Millisecond:  2,
		50 * time.Millisecond:  3,
		100 * time.Millisecond: 4,
		250 * time.Millisecond: 5,
		500 * time.Millisecond: 6,
		time.Second:            7,
	}
	for d, want := range cases {
		if got := bucketIndex(d); got != want {
			t.Errorf("bucketIndex(%v) = %d, want %d", d, got, want)
		}
	}
}

func TestClientRecordsBackendLatency(t *testing.T) {
	c, fake := newTestClient(t, func(b *Builder) { b.WithLatencyHistograms(true) })
	addBob(fake)
	loginBob(t, c, fake)

	s := c.MetricsSnapshot()
	var total uint64
	for _, n := range s.Histograms[MetricBackendLatency] {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected two observed backend calls, got %d", total)
	}
	if s.Counters[MetricLoginSubmitSuccess] != 1 || s.Counters[MetricOTPVerifySuccess] != 1 {
		t.Fatalf("unexpected counters %v", s.Counters)
	}

	_ = c.Logout(context.Background())
}
