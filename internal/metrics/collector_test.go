package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	// 同一命名空间注册到不同注册表时不应 panic
	_ = NewMetrics("genlog", prometheus.NewRegistry())
	_ = NewMetrics("genlog", prometheus.NewRegistry())
}

func TestMetrics_Helpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("genlog", reg)

	m.RecordSubmission("success", 12)
	m.RecordSubmission("success", 3)
	m.RecordSubmission("decode_error", 1)
	m.RecordScreenshot("before", 2048)
	m.SetLogRecords(7)
	m.RecordList(true)
	m.RecordList(false)
	m.UpdateStreamSubscribers(2)
	m.RecordEventPublish(false)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"submissions success", m.SubmissionsTotal.WithLabelValues("success"), 2},
		{"submissions decode_error", m.SubmissionsTotal.WithLabelValues("decode_error"), 1},
		{"screenshots before", m.ScreenshotsTotal.WithLabelValues("before"), 1},
		{"log records", m.LogRecords, 7},
		{"list error", m.ListRequestsTotal.WithLabelValues("error"), 1},
		{"subscribers", m.StreamSubscribers, 2},
		{"events error", m.EventsPublished.WithLabelValues("error"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.c); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("Gather() returned no metric families")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSubmission("success", 1)
	m.RecordScreenshot("after", 1)
	m.SetLogRecords(1)
	m.RecordList(true)
	m.UpdateStreamSubscribers(1)
	m.RecordEventPublish(true)
}
