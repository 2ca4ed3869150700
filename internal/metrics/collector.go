// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义日志服务的关键指标（提交、截图、查询、订阅、事件），便于在各模块复用并保持标签一致。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 封装日志服务的指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
//
// 指标分类:
//   - 提交指标: 跟踪日志提交的数量、耗时和失败原因
//   - 截图指标: 统计写入的截图数量与字节数
//   - 查询指标: 统计日志查询次数
//   - 推送指标: 监控实时订阅者与事件发布结果
type Metrics struct {
	// ========== 提交相关指标 ==========

	// SubmissionsTotal 日志提交总次数计数器
	// 标签: status (success/invalid/decode_error/io_error/corrupt_log/internal)
	SubmissionsTotal *prometheus.CounterVec

	// SubmitDuration 提交处理耗时直方图（单位：毫秒）
	// 桶边界: 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500 ms
	SubmitDuration prometheus.Histogram

	// LogRecords 日志文件中当前的记录数
	LogRecords prometheus.Gauge

	// ========== 截图相关指标 ==========

	// ScreenshotsTotal 写入的截图文件数
	// 标签: slot (before/after)
	ScreenshotsTotal *prometheus.CounterVec

	// ScreenshotBytes 单张截图解码后的字节数直方图
	ScreenshotBytes prometheus.Histogram

	// ========== 查询相关指标 ==========

	// ListRequestsTotal 日志查询次数
	// 标签: status (success/error)
	ListRequestsTotal *prometheus.CounterVec

	// ========== 推送相关指标 ==========

	// StreamSubscribers 当前实时日志流订阅者数量
	StreamSubscribers prometheus.Gauge

	// EventsPublished 事件发布次数
	// 标签: result (success/error)
	EventsPublished *prometheus.CounterVec
}

// NewMetrics 创建并注册一组 Prometheus 指标。
// namespace 用于作为所有指标名前缀；reg 为 nil 时注册到默认注册表。
// 测试中应传入独立的 prometheus.NewRegistry()，避免重复注册。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Total number of generation log submissions",
			},
			[]string{"status"},
		),
		SubmitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submit_duration_ms",
				Help:      "Generation log submission duration in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
		LogRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "log_records",
				Help:      "Number of records in the generation log",
			},
		),
		ScreenshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "screenshots_total",
				Help:      "Total number of screenshot files written",
			},
			[]string{"slot"},
		),
		ScreenshotBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "screenshot_bytes",
				Help:      "Decoded screenshot size in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		ListRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "list_requests_total",
				Help:      "Total number of log list requests",
			},
			[]string{"status"},
		),
		StreamSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_subscribers",
				Help:      "Number of connected record stream subscribers",
			},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of record events published",
			},
			[]string{"result"},
		),
	}
}

// RecordSubmission 记录一次提交的结果与耗时。
// status 通常来自 domain.ErrorKind。
func (m *Metrics) RecordSubmission(status string, durationMs float64) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
	m.SubmitDuration.Observe(durationMs)
}

// RecordScreenshot 记录一张写入的截图。
func (m *Metrics) RecordScreenshot(slot string, size int) {
	if m == nil {
		return
	}
	m.ScreenshotsTotal.WithLabelValues(slot).Inc()
	m.ScreenshotBytes.Observe(float64(size))
}

// SetLogRecords 更新日志记录数。
func (m *Metrics) SetLogRecords(n int) {
	if m == nil {
		return
	}
	m.LogRecords.Set(float64(n))
}

// RecordList 记录一次日志查询。
func (m *Metrics) RecordList(success bool) {
	if m == nil {
		return
	}
	m.ListRequestsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// UpdateStreamSubscribers 更新实时订阅者数量。
func (m *Metrics) UpdateStreamSubscribers(n int) {
	if m == nil {
		return
	}
	m.StreamSubscribers.Set(float64(n))
}

// RecordEventPublish 记录一次事件发布结果。
func (m *Metrics) RecordEventPublish(success bool) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
