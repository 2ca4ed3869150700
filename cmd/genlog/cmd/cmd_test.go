package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
)

// executeCommand 针对给定服务器执行命令并返回标准输出。
func executeCommand(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	viper.Set("api_url", serverURL)
	t.Cleanup(func() { viper.Set("api_url", "") })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			json.NewEncoder(w).Encode(map[string]string{"message": "Figma Plugin Logger Server", "status": "running"})
		case "/health":
			json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		case "/health/ready":
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"detail": "log store not ready: corrupt"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	output, err := executeCommand(t, server.URL, "status", "-o", "table")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, want := range []string{"Figma Plugin Logger Server", "running", "healthy", "no (log store not ready: corrupt)"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestList(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"total":5,"logs":[
			{"timestamp":"2024-05-01T09:00:00","designPrompt":"login form","figmaDOM":{},"descriptionAPI":null,"generationAPI":null,"screenshots":{"before":"media/2024-05-01_09-00-00-before.png","after":null}},
			{"timestamp":"2024-05-01T09:05:00","designPrompt":"pricing page","figmaDOM":{},"descriptionAPI":null,"generationAPI":null,"screenshots":{"before":null,"after":null}}
		]}`))
	}))
	defer server.Close()

	t.Run("table", func(t *testing.T) {
		output, err := executeCommand(t, server.URL, "list", "--limit", "2", "-o", "table")
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if gotLimit != "2" {
			t.Errorf("limit query = %q, want 2", gotLimit)
		}
		// 序号按记录在日志中的位置计算
		for _, want := range []string{"INDEX", "3", "login form", "media/2024-05-01_09-00-00-before.png", "4", "pricing page", "Showing 2 of 5 logs."} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		output, err := executeCommand(t, server.URL, "list", "--limit", "2", "-o", "json")
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		var list LogList
		if err := json.Unmarshal([]byte(output), &list); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, output)
		}
		if list.Total != 5 || len(list.Logs) != 2 {
			t.Errorf("list = total %d, %d logs", list.Total, len(list.Logs))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		output, err := executeCommand(t, server.URL, "list", "--limit", "2", "-o", "yaml")
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if !strings.Contains(output, "total: 5") || !strings.Contains(output, "designPrompt: login form") {
			t.Errorf("unexpected yaml output:\n%s", output)
		}
	})
}

func TestListEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":3,"logs":[]}`))
	}))
	defer server.Close()

	output, err := executeCommand(t, server.URL, "list", "--limit", "0", "-o", "table")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "No logs found (total 3).") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestListAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["query","limit"],"msg":"value is not a valid integer","type":"type_error.integer"}],"request_id":"req-1"}`))
	}))
	defer server.Close()

	_, err := executeCommand(t, server.URL, "list", "--limit", "5", "-o", "table")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Code = %d", apiErr.Code)
	}
	msg := apiErr.Error()
	if !strings.Contains(msg, "query.limit: value is not a valid integer") || !strings.Contains(msg, "req-1") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\nfake")
	pngPath := filepath.Join(dir, "before.png")
	if err := os.WriteFile(pngPath, png, 0644); err != nil {
		t.Fatal(err)
	}
	bodyPath := filepath.Join(dir, "body.json")
	if err := os.WriteFile(bodyPath, []byte(`{"timestamp":"2024-05-01T09:00:00","designPrompt":"old","figmaDOM":{"z":1,"a":2},"generationAPI":{"model":"m"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	var got map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/log" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success", "message": "Log saved successfully", "logIndex": 7, "timestamp": "2024-05-01T09:00:00",
		})
	}))
	defer server.Close()

	output, err := executeCommand(t, server.URL, "submit",
		"--file", bodyPath, "--before", pngPath, "--after", "", "--prompt", "new prompt", "--timestamp", "", "-o", "table")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "Log saved successfully (index 7") {
		t.Errorf("unexpected output: %s", output)
	}

	if string(got["timestamp"]) != `"2024-05-01T09:00:00"` {
		t.Errorf("timestamp = %s", got["timestamp"])
	}
	if string(got["designPrompt"]) != `"new prompt"` {
		t.Errorf("designPrompt = %s", got["designPrompt"])
	}
	// 不透明文档原样转发
	if string(got["figmaDOM"]) != `{"z":1,"a":2}` {
		t.Errorf("figmaDOM = %s", got["figmaDOM"])
	}
	var shots map[string]string
	if err := json.Unmarshal(got["screenshots"], &shots); err != nil {
		t.Fatal(err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(shots["before"], prefix) {
		t.Fatalf("before = %q", shots["before"])
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(shots["before"], prefix))
	if err != nil || !bytes.Equal(decoded, png) {
		t.Errorf("decoded before = %q, %v", decoded, err)
	}
	if _, ok := shots["after"]; ok {
		t.Error("after slot should be absent")
	}
}

func TestBuildSubmitBody_Defaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 123e6, time.UTC)
	data, err := buildSubmitBody("", "", "", "", "", now)
	if err != nil {
		t.Fatalf("buildSubmitBody() error = %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"timestamp":    `"2024-05-01T09:00:00.123Z"`,
		"designPrompt": `""`,
		"figmaDOM":     `{}`,
		"screenshots":  `{}`,
	}
	for key, want := range tests {
		if string(fields[key]) != want {
			t.Errorf("%s = %s, want %s", key, fields[key], want)
		}
	}
}

func TestBuildSubmitBody_Errors(t *testing.T) {
	dir := t.TempDir()
	notObject := filepath.Join(dir, "list.json")
	os.WriteFile(notObject, []byte(`[1,2]`), 0644)

	tests := []struct {
		name   string
		file   string
		before string
	}{
		{"missing body file", filepath.Join(dir, "nope.json"), ""},
		{"body not an object", notObject, ""},
		{"missing screenshot", "", filepath.Join(dir, "nope.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildSubmitBody(tt.file, "", "", tt.before, "", time.Now()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFollow(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logs/stream" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			conn.WriteJSON(map[string]interface{}{
				"logIndex": i,
				"record": map[string]interface{}{
					"timestamp":    "2024-05-01T09:00:0" + string(rune('0'+i)),
					"designPrompt": "prompt",
					"screenshots":  map[string]interface{}{"before": nil, "after": nil},
				},
			})
		}
		// 等待客户端关闭
		conn.ReadMessage()
	}))
	defer server.Close()

	output, err := executeCommand(t, server.URL, "follow", "--count", "2", "-o", "json")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), output)
	}
	for i, line := range lines {
		var msg StreamMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if msg.LogIndex != i {
			t.Errorf("line %d logIndex = %d", i, msg.LogIndex)
		}
	}
}

func TestBuildWebSocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8000", "ws://localhost:8000/logs/stream", false},
		{"https://logs.example.com/?x=1", "wss://logs.example.com/logs/stream", false},
		{"ws://h:1", "ws://h:1/logs/stream", false},
		{"ftp://h", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := buildWebSocketURL(tt.base, "/logs/stream")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
