// Package events 提供记录事件的发布。
// 当前实现基于 NATS JetStream：每条日志记录追加成功后发布一条 generation.logged 事件，
// 供下游评审或分析服务异步消费。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oriys/genlog/internal/domain"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	// StreamName 是记录事件所在的 JetStream Stream。
	StreamName = "GENERATIONS"
	// SubjectRecordLogged 是记录追加事件的 subject。
	SubjectRecordLogged = "generation.logged"

	// defaultPublishTimeout 是单条记录事件等待 JetStream 确认的上限。
	defaultPublishTimeout = 5 * time.Second
)

// publisher 是 EventBus 所需的最小 JetStream 发布能力。
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// EventBus 封装 NATS 连接与事件发布。
type EventBus struct {
	conn    *nats.Conn
	js      publisher
	logger  *logrus.Logger
	metrics *metrics.Metrics

	// publishTimeout 为 0 时使用 defaultPublishTimeout
	publishTimeout time.Duration
	// inflight 跟踪后台发布，Close 前等待其结束
	inflight sync.WaitGroup
}

// Event 表示一条事件（JSON 格式）。
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// RecordLoggedData 是 generation.logged 事件的载荷。
// 只携带摘要与截图路径，不包含 DOM 与 API 文档。
type RecordLoggedData struct {
	Index        int                `json:"logIndex"`
	Timestamp    string             `json:"timestamp"`
	DesignPrompt string             `json:"designPrompt"`
	Screenshots  domain.Screenshots `json:"screenshots"`
}

// NewEventBus 连接 NATS 并确保 GENERATIONS Stream 存在。
func NewEventBus(natsURL string, logger *logrus.Logger, m *metrics.Metrics) (*EventBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("genlog-server"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"generation.>"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	}
	if _, err := js.AddStream(cfg); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		// Stream 已存在但配置不同
		if _, err := js.UpdateStream(cfg); err != nil {
			logger.WithError(err).Warn("Failed to ensure JetStream stream")
		}
	}

	return &EventBus{
		conn:    nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}, nil
}

// Close 等待进行中的发布结束后关闭底层 NATS 连接。
func (eb *EventBus) Close() error {
	eb.inflight.Wait()
	if eb.conn != nil {
		eb.conn.Close()
	}
	return nil
}

// Publish 发布事件到指定 subject。
func (eb *EventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := eb.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		eb.metrics.RecordEventPublish(false)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	eb.metrics.RecordEventPublish(true)

	eb.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("Event published")
	return nil
}

// RecordAppended 在后台发布“记录已追加”事件并立即返回。
// 发布与请求生命周期解耦，等待确认的时间受 publishTimeout 限制；
// 失败只记录日志，不影响已经完成的提交。
func (eb *EventBus) RecordAppended(ctx context.Context, index int, rec *domain.Record) {
	event, err := newRecordEvent(index, rec, time.Now())
	if err != nil {
		eb.logger.WithError(err).Warn("Failed to build record event")
		return
	}

	timeout := eb.publishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	eb.inflight.Add(1)
	go func() {
		defer eb.inflight.Done()
		defer cancel()
		if err := eb.Publish(pubCtx, SubjectRecordLogged, event); err != nil {
			eb.logger.WithError(err).WithField("log_index", index).Warn("Failed to publish record event")
		}
	}()
}

func newRecordEvent(index int, rec *domain.Record, now time.Time) (*Event, error) {
	data, err := json.Marshal(RecordLoggedData{
		Index:        index,
		Timestamp:    rec.Timestamp,
		DesignPrompt: rec.DesignPrompt,
		Screenshots:  rec.Screenshots,
	})
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      SubjectRecordLogged,
		Source:    "genlog-server",
		Subject:   SubjectRecordLogged,
		Data:      data,
		Timestamp: now,
	}, nil
}
