// Package domain 定义了生成日志服务的核心领域模型。
package domain

import (
	"errors"
	"strings"
)

// 领域错误定义
// 这些错误用于在存储层、记录器和 HTTP 层之间传递失败原因，
// 上层通过 errors.Is 判断错误类别，通过 Error() 获取面向用户的描述。

var (
	// ========== 提交相关错误 ==========

	// ErrInvalidScreenshot 表示截图载荷不是合法的 base64 数据（DecodeError）
	ErrInvalidScreenshot = errors.New("invalid screenshot payload")
	// ErrInvalidToken 表示由时间戳派生出的文件名标记无法安全地用作文件名
	ErrInvalidToken = errors.New("invalid file token")

	// ========== 存储相关错误 ==========

	// ErrStorageIO 表示读写日志文件或媒体文件时发生的文件系统错误（IOError）
	ErrStorageIO = errors.New("storage i/o error")
	// ErrCorruptLog 表示现有日志文件不是合法的记录序列（CorruptLogError）
	ErrCorruptLog = errors.New("log file is corrupt")
)

// FieldIssue 描述请求体中单个字段的校验问题。
// 结构与常见 Web 框架的校验错误保持一致，便于插件端直接展示。
type FieldIssue struct {
	Loc  []string `json:"loc"`  // 字段位置，如 ["body", "timestamp"]
	Msg  string   `json:"msg"`  // 人类可读的错误描述
	Type string   `json:"type"` // 机器可读的错误类型
}

// ValidationError 表示请求体缺少必填字段或字段形状不正确。
// HTTP 层会将其转换为 422 响应，不会进入业务处理流程。
type ValidationError struct {
	Issues []FieldIssue
}

// Error 实现 error 接口，将所有字段问题拼接为一行描述。
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, strings.Join(issue.Loc, ".")+": "+issue.Msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add 追加一个字段问题。
func (e *ValidationError) add(msg, typ string, loc ...string) {
	e.Issues = append(e.Issues, FieldIssue{
		Loc:  append([]string{"body"}, loc...),
		Msg:  msg,
		Type: typ,
	})
}

// ErrorKind 返回错误的类别标签，用于指标与日志。
// 未识别的错误统一归为 "internal"。
func ErrorKind(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrInvalidScreenshot):
		return "decode_error"
	case errors.Is(err, ErrCorruptLog):
		return "corrupt_log"
	case errors.Is(err, ErrStorageIO), errors.Is(err, ErrInvalidToken):
		return "io_error"
	default:
		return "internal"
	}
}
