package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oriys/genlog/internal/domain"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// fakePublisher 记录发布的消息，可选地返回错误或阻塞到 release 关闭
type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	release  chan struct{}
}

func (f *fakePublisher) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: StreamName}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func strPtr(s string) *string { return &s }

func TestNewRecordEvent(t *testing.T) {
	rec := &domain.Record{
		Timestamp:    "2024-05-01T12:30:45.123Z",
		DesignPrompt: "login screen",
		FigmaDOM:     json.RawMessage(`{"big":"document"}`),
		Screenshots:  domain.Screenshots{Before: strPtr("media/2024-05-01_12-30-45-before.png")},
	}
	now := time.Date(2024, 5, 1, 12, 31, 0, 0, time.UTC)

	event, err := newRecordEvent(3, rec, now)
	if err != nil {
		t.Fatalf("newRecordEvent() error = %v", err)
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		t.Errorf("ID = %q is not a UUID", event.ID)
	}
	if event.Subject != SubjectRecordLogged || event.Type != SubjectRecordLogged {
		t.Errorf("subject/type = %s/%s", event.Subject, event.Type)
	}
	if !event.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, now)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if data["logIndex"] != float64(3) {
		t.Errorf("logIndex = %v, want 3", data["logIndex"])
	}
	if _, ok := data["figmaDOM"]; ok {
		t.Error("event data should not carry the DOM document")
	}
	shots := data["screenshots"].(map[string]interface{})
	if shots["before"] != "media/2024-05-01_12-30-45-before.png" || shots["after"] != nil {
		t.Errorf("screenshots = %v", shots)
	}
}

func TestEventBus_RecordAppended(t *testing.T) {
	fp := &fakePublisher{}
	eb := &EventBus{js: fp, logger: quietLogger(), metrics: metrics.NewMetrics("test", prometheus.NewRegistry())}

	eb.RecordAppended(context.Background(), 0, &domain.Record{Timestamp: "t", DesignPrompt: "p"})
	eb.Close()

	if len(fp.subjects) != 1 || fp.subjects[0] != SubjectRecordLogged {
		t.Fatalf("subjects = %v", fp.subjects)
	}
	var event Event
	if err := json.Unmarshal(fp.payloads[0], &event); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if event.Source != "genlog-server" {
		t.Errorf("Source = %s", event.Source)
	}
}

func TestEventBus_PublishFailureIsSwallowed(t *testing.T) {
	fp := &fakePublisher{err: errors.New("no responders")}
	eb := &EventBus{js: fp, logger: quietLogger()}

	// 不应 panic，也不返回错误
	eb.RecordAppended(context.Background(), 1, &domain.Record{Timestamp: "t"})
	eb.Close()

	if err := eb.Publish(context.Background(), SubjectRecordLogged, &Event{ID: "x"}); err == nil {
		t.Error("Publish() error = nil, want error")
	}
}

// TestEventBus_RecordAppendedDoesNotWaitForAck 测试 broker 无响应时提交流程不被阻塞，
// 且请求上下文取消后事件仍会发出。
func TestEventBus_RecordAppendedDoesNotWaitForAck(t *testing.T) {
	fp := &fakePublisher{release: make(chan struct{})}
	eb := &EventBus{js: fp, logger: quietLogger(), publishTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eb.RecordAppended(ctx, 2, &domain.Record{Timestamp: "t"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("RecordAppended blocked while the publish was pending")
	}

	// 请求结束不影响后台发布
	cancel()
	close(fp.release)
	eb.Close()

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if len(fp.subjects) != 1 || fp.subjects[0] != SubjectRecordLogged {
		t.Errorf("subjects = %v, want one %s", fp.subjects, SubjectRecordLogged)
	}
}
