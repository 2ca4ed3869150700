package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// 截图槽位名称，同时用作媒体文件名后缀。
const (
	SlotBefore = "before"
	SlotAfter  = "after"
)

// Slots 按固定顺序列出所有截图槽位。
var Slots = []string{SlotBefore, SlotAfter}

// Screenshots 表示两个已知截图槽位。
// 请求中为 base64 载荷，持久化后为相对文件路径；nil 表示该槽位没有图片。
type Screenshots struct {
	Before *string `json:"before"`
	After  *string `json:"after"`
}

// Get 返回指定槽位的值。
func (s Screenshots) Get(slot string) *string {
	switch slot {
	case SlotBefore:
		return s.Before
	case SlotAfter:
		return s.After
	}
	return nil
}

// Set 设置指定槽位的值，未知槽位被忽略。
func (s *Screenshots) Set(slot string, v *string) {
	switch slot {
	case SlotBefore:
		s.Before = v
	case SlotAfter:
		s.After = v
	}
}

// GenerationLog 是插件提交的一次生成事件（POST /log 的请求体）。
//
// FigmaDOM、DescriptionAPI、GenerationAPI 为不透明 JSON 文档，
// 服务端从不解析其内容，以原始字节保存以保留键顺序。
type GenerationLog struct {
	Timestamp      string          `json:"timestamp"`
	DesignPrompt   string          `json:"designPrompt"`
	FigmaDOM       json.RawMessage `json:"figmaDOM"`
	DescriptionAPI json.RawMessage `json:"descriptionAPI"`
	GenerationAPI  json.RawMessage `json:"generationAPI"`
	Screenshots    Screenshots     `json:"screenshots"`
}

// Record 是写入日志文件的持久化形式。
// 与 GenerationLog 字段一致，但 Screenshots 中保存的是相对路径。
// 可选文档缺失时序列化为 null。
type Record struct {
	Timestamp      string          `json:"timestamp"`
	DesignPrompt   string          `json:"designPrompt"`
	FigmaDOM       json.RawMessage `json:"figmaDOM"`
	DescriptionAPI json.RawMessage `json:"descriptionAPI"`
	GenerationAPI  json.RawMessage `json:"generationAPI"`
	Screenshots    Screenshots     `json:"screenshots"`
}

// NewRecord 根据请求和已写入的截图路径构建持久化记录。
func NewRecord(in *GenerationLog, paths Screenshots) *Record {
	return &Record{
		Timestamp:      in.Timestamp,
		DesignPrompt:   in.DesignPrompt,
		FigmaDOM:       in.FigmaDOM,
		DescriptionAPI: in.DescriptionAPI,
		GenerationAPI:  in.GenerationAPI,
		Screenshots:    paths,
	}
}

// SubmitResult 是一次成功提交的摘要。
type SubmitResult struct {
	LogIndex  int    `json:"logIndex"`
	Timestamp string `json:"timestamp"`
}

// ListResult 是日志查询结果：总数与末尾窗口内的记录（按存储顺序）。
type ListResult struct {
	Total int               `json:"total"`
	Logs  []json.RawMessage `json:"logs"`
}

// ParseGenerationLog 解析并校验请求体。
//
// 校验规则：
//   - timestamp、designPrompt 必须存在且为字符串
//   - figmaDOM 必须存在且为 JSON 对象
//   - descriptionAPI、generationAPI 可缺失或为 null，否则必须为对象
//   - screenshots 必须存在且为对象，其所有值必须为字符串或 null
//   - 请求体必须是合法的 UTF-8
//
// 所有问题会被一次性收集到 *ValidationError 中返回。
func ParseGenerationLog(body []byte) (*GenerationLog, error) {
	verr := &ValidationError{}

	// 原始文档按字节保存，非法 UTF-8 会原样进入日志文件
	if !utf8.Valid(body) {
		verr.Issues = append(verr.Issues, FieldIssue{
			Loc:  []string{"body"},
			Msg:  "request body is not valid UTF-8",
			Type: "value_error.unicode",
		})
		return nil, verr
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		verr.Issues = append(verr.Issues, FieldIssue{
			Loc:  []string{"body"},
			Msg:  "request body must be a JSON object",
			Type: "type_error.dict",
		})
		return nil, verr
	}

	out := &GenerationLog{}
	out.Timestamp = requireString(fields, "timestamp", verr)
	out.DesignPrompt = requireString(fields, "designPrompt", verr)

	if raw, ok := present(fields, "figmaDOM"); !ok {
		verr.add("field required", "value_error.missing", "figmaDOM")
	} else if kindOf(raw) != '{' {
		verr.add("value is not a valid dict", "type_error.dict", "figmaDOM")
	} else {
		out.FigmaDOM = raw
	}

	out.DescriptionAPI = optionalObject(fields, "descriptionAPI", verr)
	out.GenerationAPI = optionalObject(fields, "generationAPI", verr)

	if raw, ok := present(fields, "screenshots"); !ok {
		verr.add("field required", "value_error.missing", "screenshots")
	} else if kindOf(raw) != '{' {
		verr.add("value is not a valid dict", "type_error.dict", "screenshots")
	} else {
		var slots map[string]json.RawMessage
		_ = json.Unmarshal(raw, &slots)
		for key, v := range slots {
			switch kindOf(v) {
			case 'n':
				continue
			case '"':
				var s string
				_ = json.Unmarshal(v, &s)
				out.Screenshots.Set(key, &s)
			default:
				verr.add("str type expected", "type_error.str", "screenshots", key)
			}
		}
	}

	if len(verr.Issues) > 0 {
		return nil, verr
	}
	return out, nil
}

// present 返回字段的原始值；缺失或为 null 都视为不存在。
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || kindOf(raw) == 'n' {
		return nil, false
	}
	return raw, true
}

func requireString(fields map[string]json.RawMessage, key string, verr *ValidationError) string {
	raw, ok := present(fields, key)
	if !ok {
		verr.add("field required", "value_error.missing", key)
		return ""
	}
	if kindOf(raw) != '"' {
		verr.add("str type expected", "type_error.str", key)
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		verr.add(fmt.Sprintf("invalid string: %v", err), "type_error.str", key)
	}
	return s
}

func optionalObject(fields map[string]json.RawMessage, key string, verr *ValidationError) json.RawMessage {
	raw, ok := present(fields, key)
	if !ok {
		return nil
	}
	if kindOf(raw) != '{' {
		verr.add("value is not a valid dict", "type_error.dict", key)
		return nil
	}
	return raw
}

// kindOf 返回 JSON 值的首个有效字符，用于粗粒度判断类型。
func kindOf(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
