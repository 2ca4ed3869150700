// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现 API 客户端，用于与生成日志服务通信。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/genlog/internal/telemetry"
	"github.com/spf13/viper"
)

// Client 是生成日志服务的 API 客户端。
type Client struct {
	baseURL    string       // API 服务器的基础 URL
	httpClient *http.Client // HTTP 客户端，请求经过追踪传输层
}

// NewClient 创建一个新的 API 客户端实例。
// 从 viper 配置中读取 api_url，未配置时使用 http://localhost:8000。
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: telemetry.HTTPClientTransport(nil),
		},
	}
}

// ====== 响应模型 ======

// ServerInfo 是 GET / 的响应。
type ServerInfo struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Status 汇总服务信息与健康检查结果。
type Status struct {
	Server      string `json:"server"`
	Status      string `json:"status"`
	Health      string `json:"health"`
	Ready       bool   `json:"ready"`
	ReadyDetail string `json:"ready_detail,omitempty"`
}

// LogList 是 GET /logs 的响应，记录保持服务端原样。
type LogList struct {
	Total int               `json:"total"`
	Logs  []json.RawMessage `json:"logs"`
}

// SubmitResponse 是 POST /log 的成功响应。
type SubmitResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LogIndex  int    `json:"logIndex"`
	Timestamp string `json:"timestamp"`
}

// StreamMessage 是 /logs/stream 推送的一条消息。
type StreamMessage struct {
	LogIndex int             `json:"logIndex"`
	Record   json.RawMessage `json:"record"`
}

// recordSummary 是表格输出需要的记录字段。
type recordSummary struct {
	Timestamp    string `json:"timestamp"`
	DesignPrompt string `json:"designPrompt"`
	Screenshots  struct {
		Before *string `json:"before"`
		After  *string `json:"after"`
	} `json:"screenshots"`
}

// APIError 表示 API 返回的错误响应。
// Detail 可能是字符串，也可能是逐字段的校验错误列表。
type APIError struct {
	Code      int             `json:"-"`
	Detail    json.RawMessage `json:"detail"`
	RequestID string          `json:"request_id,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("API error %d: %s", e.Code, e.message()))

	if e.RequestID != "" {
		sb.WriteString(fmt.Sprintf("\n  Request ID: %s", e.RequestID))
	}
	if e.TraceID != "" {
		sb.WriteString(fmt.Sprintf("\n  Trace ID: %s", e.TraceID))
	}
	return sb.String()
}

func (e *APIError) message() string {
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}

	var issues []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if err := json.Unmarshal(e.Detail, &issues); err == nil && len(issues) > 0 {
		parts := make([]string, 0, len(issues))
		for _, is := range issues {
			loc := make([]string, 0, len(is.Loc))
			for _, l := range is.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(loc, "."), is.Msg))
		}
		return strings.Join(parts, "; ")
	}
	return string(e.Detail)
}

// do 执行 HTTP 请求并处理响应。body 为 []byte 时原样发送。
func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reqBody = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && len(apiErr.Detail) > 0 {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// GetStatus 查询服务信息、健康状态与日志存储就绪状态。
func (c *Client) GetStatus() (*Status, error) {
	var info ServerInfo
	if err := c.do("GET", "/", nil, &info); err != nil {
		return nil, err
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := c.do("GET", "/health", nil, &health); err != nil {
		return nil, err
	}

	status := &Status{
		Server: info.Message,
		Status: info.Status,
		Health: health.Status,
		Ready:  true,
	}
	if err := c.do("GET", "/health/ready", nil, nil); err != nil {
		apiErr, ok := err.(*APIError)
		if !ok {
			return nil, err
		}
		status.Ready = false
		status.ReadyDetail = apiErr.message()
	}
	return status, nil
}

// ListLogs 查询最近的日志记录，limit 小于 0 时使用服务端默认值。
func (c *Client) ListLogs(limit int) (*LogList, error) {
	path := "/logs"
	if limit >= 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var list LogList
	if err := c.do("GET", path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SubmitLog 提交一条生成日志，body 为完整的 JSON 请求体。
func (c *Client) SubmitLog(body []byte) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do("POST", "/log", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
