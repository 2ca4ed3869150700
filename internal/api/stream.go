package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oriys/genlog/internal/domain"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/sirupsen/logrus"
)

// StreamMessage 是记录流中推送的消息结构。
type StreamMessage struct {
	LogIndex int            `json:"logIndex"`
	Record   *domain.Record `json:"record"`
}

// subscriberBuffer 是每个订阅者的消息缓冲区大小，满了之后新消息被丢弃。
const subscriberBuffer = 64

// RecordBroadcaster 将新追加的记录分发给所有订阅者。
// 发送是非阻塞的，慢订阅者只会丢消息，不会拖慢提交。
type RecordBroadcaster struct {
	subscribers   map[chan StreamMessage]struct{}
	subscribersMu sync.RWMutex
	metrics       *metrics.Metrics
}

// NewRecordBroadcaster 创建记录广播器，m 可以为 nil。
func NewRecordBroadcaster(m *metrics.Metrics) *RecordBroadcaster {
	return &RecordBroadcaster{
		subscribers: make(map[chan StreamMessage]struct{}),
		metrics:     m,
	}
}

// Subscribe 订阅记录
func (b *RecordBroadcaster) Subscribe() chan StreamMessage {
	ch := make(chan StreamMessage, subscriberBuffer)
	b.subscribersMu.Lock()
	b.subscribers[ch] = struct{}{}
	n := len(b.subscribers)
	b.subscribersMu.Unlock()
	b.metrics.UpdateStreamSubscribers(n)
	return ch
}

// Unsubscribe 取消订阅
func (b *RecordBroadcaster) Unsubscribe(ch chan StreamMessage) {
	b.subscribersMu.Lock()
	delete(b.subscribers, ch)
	n := len(b.subscribers)
	b.subscribersMu.Unlock()
	b.metrics.UpdateStreamSubscribers(n)
}

// Subscribers 返回当前订阅者数量
func (b *RecordBroadcaster) Subscribers() int {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()
	return len(b.subscribers)
}

// Broadcast 广播一条消息
func (b *RecordBroadcaster) Broadcast(msg StreamMessage) {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// 通道满了，丢弃
		}
	}
}

// RecordAppended 实现 recorder.Notifier。
func (b *RecordBroadcaster) RecordAppended(ctx context.Context, index int, rec *domain.Record) {
	b.Broadcast(StreamMessage{LogIndex: index, Record: rec})
}

// StreamHandler 通过 WebSocket 推送新追加的记录。
type StreamHandler struct {
	broadcaster *RecordBroadcaster
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
}

// NewStreamHandler 创建记录流处理器。
func NewStreamHandler(b *RecordBroadcaster, logger *logrus.Logger) *StreamHandler {
	return &StreamHandler{
		broadcaster: b,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 插件来源不固定，与 CORS 默认策略一致
			},
		},
	}
}

// ServeHTTP 处理 GET /logs/stream。
// 连接建立后只推送之后追加的记录，历史记录请使用 GET /logs。
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	s.logger.WithField("remote_ip", r.RemoteAddr).Debug("Record stream subscriber connected")

	// 监听客户端关闭
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
