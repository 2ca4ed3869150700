// Package recorder 实现生成日志的提交与查询流程。
//
// 提交流程：派生文件名标记 → 解码全部截图 → 写入媒体文件 → 追加元数据记录 → 通知订阅者。
// 所有截图在写入任何文件之前解码完毕，解码失败时不会产生文件，也不会追加记录。
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/genlog/internal/domain"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/oriys/genlog/internal/storage"
	"github.com/oriys/genlog/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MediaWriter 将解码后的截图写入持久存储，返回记录中引用的相对路径。
type MediaWriter interface {
	Write(ctx context.Context, token, slot string, data []byte) (string, error)
}

// Notifier 在记录成功追加后收到通知。
// 实现不得阻塞提交流程，失败时自行记录日志。
type Notifier interface {
	RecordAppended(ctx context.Context, index int, rec *domain.Record)
}

// Recorder 串联截图解码、媒体写入与日志追加。
type Recorder struct {
	store     storage.LogStore
	media     MediaWriter
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	notifiers []Notifier
}

// New 创建 Recorder。metrics 可以为 nil。
func New(store storage.LogStore, media MediaWriter, m *metrics.Metrics, logger *logrus.Logger, notifiers ...Notifier) *Recorder {
	return &Recorder{
		store:     store,
		media:     media,
		metrics:   m,
		logger:    logger,
		notifiers: notifiers,
	}
}

// decodedShot 是一张已解码、待写入的截图
type decodedShot struct {
	slot string
	data []byte
}

// Submit 持久化一次生成事件并返回其序号。
//
// 错误类别（可用 errors.Is 判断）：
//   - domain.ErrInvalidScreenshot: 某个截图不是合法 base64，未写入任何文件
//   - domain.ErrInvalidToken / domain.ErrStorageIO: 写媒体文件或日志文件失败
//   - domain.ErrCorruptLog: 现有日志无法解析，未追加记录
//
// 媒体写入与日志追加不是事务性的：截图写入后追加失败会留下孤立的图片文件。
func (r *Recorder) Submit(ctx context.Context, in *domain.GenerationLog) (*domain.SubmitResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "recorder.Submit")
	defer span.End()

	start := time.Now()
	result, err := r.submit(ctx, in)
	r.metrics.RecordSubmission(domain.ErrorKind(err), float64(time.Since(start).Milliseconds()))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		telemetry.RecordError(ctx, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"timestamp": in.Timestamp,
			"kind":      domain.ErrorKind(err),
		}).Error("Failed to save generation log")
		return nil, err
	}
	return result, nil
}

func (r *Recorder) submit(ctx context.Context, in *domain.GenerationLog) (*domain.SubmitResult, error) {
	token := domain.SanitizeTimestamp(in.Timestamp)
	telemetry.AddSpanAttributes(ctx, attribute.String("genlog.token", token))

	var shots []decodedShot
	for _, slot := range domain.Slots {
		v := in.Screenshots.Get(slot)
		if v == nil || *v == "" {
			continue
		}
		data, err := domain.DecodeScreenshot(*v)
		if err != nil {
			return nil, fmt.Errorf("screenshot %s: %w", slot, err)
		}
		shots = append(shots, decodedShot{slot: slot, data: data})
	}

	// 校验通过后不再响应请求取消，避免客户端断开留下写了一半的截图
	ctx = context.WithoutCancel(ctx)

	var paths domain.Screenshots
	for _, shot := range shots {
		rel, err := r.media.Write(ctx, token, shot.slot, shot.data)
		if err != nil {
			return nil, fmt.Errorf("screenshot %s: %w", shot.slot, err)
		}
		paths.Set(shot.slot, &rel)
		r.metrics.RecordScreenshot(shot.slot, len(shot.data))
	}

	rec := domain.NewRecord(in, paths)
	index, err := r.store.Append(ctx, rec)
	if err != nil {
		return nil, err
	}
	r.metrics.SetLogRecords(index + 1)
	telemetry.AddSpanAttributes(ctx, attribute.Int("genlog.log_index", index))

	r.logger.WithContext(ctx).WithFields(logrus.Fields{
		"log_index":   index,
		"timestamp":   in.Timestamp,
		"screenshots": len(shots),
	}).Info("Generation log saved")

	for _, n := range r.notifiers {
		n.RecordAppended(ctx, index, rec)
	}

	return &domain.SubmitResult{LogIndex: index, Timestamp: in.Timestamp}, nil
}

// List 返回记录总数以及末尾最多 limit 条记录（按存储顺序）。
// limit 为 0 时返回空列表，limit 的合法性由调用方保证。
func (r *Recorder) List(ctx context.Context, limit int) (*domain.ListResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "recorder.List")
	defer span.End()

	total, logs, err := r.store.Tail(ctx, limit)
	r.metrics.RecordList(err == nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		telemetry.RecordError(ctx, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read generation logs")
		return nil, err
	}
	r.metrics.SetLogRecords(total)
	return &domain.ListResult{Total: total, Logs: logs}, nil
}

// Ping 检查日志存储是否可读。
func (r *Recorder) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
