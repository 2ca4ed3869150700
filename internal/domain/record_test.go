package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestParseGenerationLog 测试请求体的解析与校验。
// 覆盖必填字段缺失、字段类型错误、可选文档和截图槽位等场景。
func TestParseGenerationLog(t *testing.T) {
	tests := []struct {
		name      string // 测试用例名称
		body      string // 请求体
		wantErr   bool   // 是否期望校验失败
		wantIssue string // 期望出现的字段（以 . 连接的 loc）
	}{
		{
			name: "minimal valid body",
			body: `{"timestamp":"2024-05-01T12:30:45.123Z","designPrompt":"a button","figmaDOM":{},"screenshots":{}}`,
		},
		{
			name: "full body",
			body: `{"timestamp":"t","designPrompt":"p","figmaDOM":{"a":1},"descriptionAPI":{"x":true},"generationAPI":null,"screenshots":{"before":"QUJD","after":null,"extra":"ignored"}}`,
		},
		{
			name:      "missing timestamp",
			body:      `{"designPrompt":"p","figmaDOM":{},"screenshots":{}}`,
			wantErr:   true,
			wantIssue: "body.timestamp",
		},
		{
			name:      "invalid utf-8 inside an opaque document",
			body:      "{\"timestamp\":\"t\",\"designPrompt\":\"p\",\"figmaDOM\":{\"name\":\"\xff\xfe\"},\"screenshots\":{}}",
			wantErr:   true,
			wantIssue: "body",
		},
		{
			name:      "invalid utf-8 in the prompt",
			body:      "{\"timestamp\":\"t\",\"designPrompt\":\"caf\xe9\",\"figmaDOM\":{},\"screenshots\":{}}",
			wantErr:   true,
			wantIssue: "body",
		},
		{
			name:      "timestamp is a number",
			body:      `{"timestamp":12,"designPrompt":"p","figmaDOM":{},"screenshots":{}}`,
			wantErr:   true,
			wantIssue: "body.timestamp",
		},
		{
			name:      "figmaDOM is an array",
			body:      `{"timestamp":"t","designPrompt":"p","figmaDOM":[],"screenshots":{}}`,
			wantErr:   true,
			wantIssue: "body.figmaDOM",
		},
		{
			name:      "missing screenshots",
			body:      `{"timestamp":"t","designPrompt":"p","figmaDOM":{}}`,
			wantErr:   true,
			wantIssue: "body.screenshots",
		},
		{
			name:      "screenshot value is not a string",
			body:      `{"timestamp":"t","designPrompt":"p","figmaDOM":{},"screenshots":{"before":5}}`,
			wantErr:   true,
			wantIssue: "body.screenshots.before",
		},
		{
			name:      "descriptionAPI is a string",
			body:      `{"timestamp":"t","designPrompt":"p","figmaDOM":{},"descriptionAPI":"x","screenshots":{}}`,
			wantErr:   true,
			wantIssue: "body.descriptionAPI",
		},
		{
			name:      "body is not an object",
			body:      `[1,2]`,
			wantErr:   true,
			wantIssue: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGenerationLog([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGenerationLog() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if got == nil {
					t.Fatal("ParseGenerationLog() returned nil log")
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			found := false
			for _, issue := range verr.Issues {
				if strings.Join(issue.Loc, ".") == tt.wantIssue {
					found = true
				}
			}
			if !found {
				t.Errorf("issues = %+v, want one at %s", verr.Issues, tt.wantIssue)
			}
		})
	}
}

func TestParseGenerationLog_KeepsDocumentsVerbatim(t *testing.T) {
	body := `{"timestamp":"t","designPrompt":"p","figmaDOM":{"z":1,"a":{"k":[1,2]}},"screenshots":{"before":null,"after":"QQ=="}}`
	got, err := ParseGenerationLog([]byte(body))
	if err != nil {
		t.Fatalf("ParseGenerationLog() error = %v", err)
	}
	if string(got.FigmaDOM) != `{"z":1,"a":{"k":[1,2]}}` {
		t.Errorf("FigmaDOM = %s", got.FigmaDOM)
	}
	if got.DescriptionAPI != nil {
		t.Errorf("DescriptionAPI = %s, want nil", got.DescriptionAPI)
	}
	if got.Screenshots.Before != nil {
		t.Errorf("Before = %v, want nil", *got.Screenshots.Before)
	}
	if got.Screenshots.After == nil || *got.Screenshots.After != "QQ==" {
		t.Errorf("After = %v, want QQ==", got.Screenshots.After)
	}
}

// TestRecord_MarshalNulls 验证缺失的可选字段持久化为 null。
func TestRecord_MarshalNulls(t *testing.T) {
	in := &GenerationLog{Timestamp: "t", DesignPrompt: "p", FigmaDOM: json.RawMessage(`{}`)}
	data, err := json.Marshal(NewRecord(in, Screenshots{}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"timestamp":"t","designPrompt":"p","figmaDOM":{},"descriptionAPI":null,"generationAPI":null,"screenshots":{"before":null,"after":null}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s\nwant %s", data, want)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&ValidationError{}, "invalid"},
		{ErrInvalidScreenshot, "decode_error"},
		{ErrCorruptLog, "corrupt_log"},
		{ErrStorageIO, "io_error"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
