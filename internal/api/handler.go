// Package api 提供了生成日志服务的 HTTP API 处理程序。
// 主要功能包括：
//   - 接收插件提交的生成日志（POST /log）
//   - 查询最近的日志记录（GET /logs）
//   - 实时推送新追加的记录（GET /logs/stream）
//   - 健康检查与服务信息
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriys/genlog/internal/domain"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/oriys/genlog/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// defaultListLimit 是 GET /logs 未指定 limit 时返回的记录数。
const defaultListLimit = 100

// LogService 定义处理器依赖的日志服务接口，由 recorder.Recorder 实现。
//
// 方法说明：
//   - Submit: 持久化一次生成事件
//   - List: 返回记录总数与末尾最多 limit 条记录
//   - Ping: 检查日志存储是否可读
type LogService interface {
	Submit(ctx context.Context, in *domain.GenerationLog) (*domain.SubmitResult, error)
	List(ctx context.Context, limit int) (*domain.ListResult, error)
	Ping(ctx context.Context) error
}

// Handler 是 API 请求处理器的核心结构体。
//
// 字段说明：
//   - service: 日志服务，负责提交与查询
//   - metrics: 指标集合，可为 nil
//   - logger: 日志记录器
//   - serverName: 根路径返回的服务名称
//   - maxBodyBytes: 请求体大小上限
type Handler struct {
	service      LogService
	metrics      *metrics.Metrics
	logger       *logrus.Logger
	serverName   string
	maxBodyBytes int64
}

// HandlerConfig 是创建 Handler 所需的参数。
type HandlerConfig struct {
	Service      LogService
	Metrics      *metrics.Metrics
	Logger       *logrus.Logger
	ServerName   string
	MaxBodyBytes int64
}

// NewHandler 创建并返回一个新的 Handler 实例。
func NewHandler(cfg HandlerConfig) *Handler {
	name := cfg.ServerName
	if name == "" {
		name = "Figma Plugin Logger Server"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 20
	}
	return &Handler{
		service:      cfg.Service,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		serverName:   name,
		maxBodyBytes: maxBody,
	}
}

// submitResponse 是 POST /log 成功时的响应体。
type submitResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LogIndex  int    `json:"logIndex"`
	Timestamp string `json:"timestamp"`
}

// Root 返回服务名称与运行状态。
// HTTP端点: GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": h.serverName,
		"status":  "running",
	})
}

// SubmitLog 处理插件提交的生成日志。
// HTTP端点: POST /log
//
// 功能说明：
//   - 读取请求体（超过上限返回 413）
//   - 校验字段，缺失或类型错误返回 422 及逐字段的错误列表
//   - 解码截图、写入媒体文件并追加记录
//
// 响应：
//   - 200: {"status": "success", "message": ..., "logIndex": n, "timestamp": ...}
//   - 422: {"detail": [{"loc": [...], "msg": ..., "type": ...}]}
//   - 500: {"detail": "Error saving log: <原因>"}
func (h *Handler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logWarn(r, "SubmitLog", "请求体超过大小限制", logrus.Fields{"limit": tooLarge.Limit})
			writeDetail(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.logError(r, "SubmitLog", "读取请求体失败", err, nil)
		writeDetail(w, r, http.StatusBadRequest, "Error reading request body: "+err.Error())
		return
	}

	in, err := domain.ParseGenerationLog(body)
	if err != nil {
		h.metrics.RecordSubmission(domain.ErrorKind(err), 0)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.logDebug(r, "SubmitLog", "请求校验失败", logrus.Fields{"issues": len(verr.Issues)})
			writeDetail(w, r, http.StatusUnprocessableEntity, verr.Issues)
			return
		}
		writeDetail(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := h.service.Submit(r.Context(), in)
	if err != nil {
		h.logError(r, "SubmitLog", "保存日志失败", err, logrus.Fields{"kind": domain.ErrorKind(err)})
		writeDetail(w, r, http.StatusInternalServerError, "Error saving log: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Status:    "success",
		Message:   "Log saved successfully",
		LogIndex:  res.LogIndex,
		Timestamp: res.Timestamp,
	})
}

// ListLogs 返回最近的日志记录。
// HTTP端点: GET /logs?limit=N
//
// limit 默认 100，为 0 时返回空列表；非整数或负数返回 422。
// 记录按存储顺序（旧到新）原样返回。
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if q := r.URL.Query(); q.Has("limit") {
		n, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			writeDetail(w, r, http.StatusUnprocessableEntity, []domain.FieldIssue{{
				Loc:  []string{"query", "limit"},
				Msg:  "value is not a valid integer",
				Type: "type_error.integer",
			}})
			return
		}
		if n < 0 {
			writeDetail(w, r, http.StatusUnprocessableEntity, []domain.FieldIssue{{
				Loc:  []string{"query", "limit"},
				Msg:  "ensure this value is greater than or equal to 0",
				Type: "value_error.number.not_ge",
			}})
			return
		}
		limit = n
	}

	res, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logError(r, "ListLogs", "读取日志失败", err, logrus.Fields{"kind": domain.ErrorKind(err)})
		writeDetail(w, r, http.StatusInternalServerError, "Error reading logs: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health 处理基本健康检查请求，与日志文件状态无关。
// HTTP端点: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready 处理就绪探针请求。
// HTTP端点: GET /health/ready
//
// 返回值：
//   - 200: 日志文件可读且可解析
//   - 503: 日志文件不可读或已损坏
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logWarn(r, "Ready", "log store not ready", logrus.Fields{"error": err.Error()})
		writeDetail(w, r, http.StatusServiceUnavailable, "log store not ready: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live 处理存活探针请求。
// HTTP端点: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应。
// 不转义 HTML 字符，存储的记录按原样返回。
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(data)
}

// ErrorResponse 是错误响应结构体。
// Detail 为字符串或字段问题列表。
type ErrorResponse struct {
	Detail    interface{} `json:"detail"`
	RequestID string      `json:"request_id,omitempty"` // 请求ID，用于关联日志
	TraceID   string      `json:"trace_id,omitempty"`   // 链路追踪ID
}

// writeDetail 写入带请求上下文的错误响应。
func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail interface{}) {
	writeJSON(w, status, ErrorResponse{
		Detail:    detail,
		RequestID: middleware.GetReqID(r.Context()),
		TraceID:   telemetry.TraceIDFromContext(r.Context()),
	})
}

// ========== 日志辅助方法 ==========

// requestEntry 返回带请求上下文字段的日志条目
func (h *Handler) requestEntry(r *http.Request, method string, fields logrus.Fields) *logrus.Entry {
	entry := h.logger.WithContext(r.Context()).WithFields(logrus.Fields{
		"method":     method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return telemetry.EntryWithTraceContext(r.Context(), entry)
}

// logDebug 记录调试级别日志
func (h *Handler) logDebug(r *http.Request, method, message string, fields logrus.Fields) {
	if h.logger == nil {
		return
	}
	h.requestEntry(r, method, fields).Debug(message)
}

// logWarn 记录警告级别日志
func (h *Handler) logWarn(r *http.Request, method, message string, fields logrus.Fields) {
	if h.logger == nil {
		return
	}
	h.requestEntry(r, method, fields).Warn(message)
}

// logError 记录错误级别日志
func (h *Handler) logError(r *http.Request, method, message string, err error, fields logrus.Fields) {
	if h.logger == nil {
		return
	}
	entry := h.requestEntry(r, method, fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
