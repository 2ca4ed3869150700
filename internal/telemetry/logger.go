package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogrusHook 是一个 Logrus 钩子，将日志条目上下文中的追踪信息
// （trace_id、span_id、trace_sampled）写入日志字段。
//
// 使用示例：
//
//	logger := logrus.New()
//	logger.AddHook(telemetry.NewLogrusHook())
//	logger.WithContext(ctx).Info("record appended")
type LogrusHook struct{}

// NewLogrusHook 创建一个新的 LogrusHook 实例。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 返回该钩子触发的日志级别（全部级别）。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志条目写入前被调用。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	sc := trace.SpanFromContext(entry.Context).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	entry.Data["trace_id"] = sc.TraceID().String()
	entry.Data["span_id"] = sc.SpanID().String()
	if sc.IsSampled() {
		entry.Data["trace_sampled"] = true
	}
	return nil
}

// EntryWithTraceContext 向现有日志条目追加追踪字段。
// 上下文中没有有效 Span 时原样返回。
func EntryWithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return entry
	}
	return entry.WithFields(logrus.Fields{
		"trace_id":      sc.TraceID().String(),
		"span_id":       sc.SpanID().String(),
		"trace_sampled": sc.IsSampled(),
	})
}
