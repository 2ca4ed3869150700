// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现 submit 命令，从文件与命令行参数组装一条生成日志并提交。
package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a generation log",
	Long: `Submit a generation log to the server.

The request body is read from --file when given; --timestamp, --prompt,
--before and --after override the corresponding fields. Screenshots are
read from PNG files and sent as base64 data URIs.

Examples:
  # Submit a body captured from the plugin
  genlog submit --file body.json

  # Build a minimal body with screenshots
  genlog submit --prompt "login form" --before before.png --after after.png`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

var (
	submitFile      string
	submitBefore    string
	submitAfter     string
	submitTimestamp string
	submitPrompt    string
)

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "JSON file with the request body")
	submitCmd.Flags().StringVar(&submitBefore, "before", "", "PNG file for the before screenshot")
	submitCmd.Flags().StringVar(&submitAfter, "after", "", "PNG file for the after screenshot")
	submitCmd.Flags().StringVar(&submitTimestamp, "timestamp", "", "Event timestamp (default: now)")
	submitCmd.Flags().StringVarP(&submitPrompt, "prompt", "p", "", "Design prompt")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	body, err := buildSubmitBody(submitFile, submitTimestamp, submitPrompt, submitBefore, submitAfter, time.Now())
	if err != nil {
		return err
	}

	resp, err := NewClient().SubmitLog(body)
	if err != nil {
		return err
	}
	return NewPrinter(cmd.OutOrStdout()).PrintSubmitResult(resp)
}

// buildSubmitBody 组装请求体。
// 文件中的文档字段原样保留；缺失的 timestamp、designPrompt、figmaDOM、screenshots 会被补齐。
func buildSubmitBody(file, timestamp, prompt, before, after string, now time.Time) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("body file must contain a JSON object: %w", err)
		}
	}

	if timestamp != "" {
		fields["timestamp"] = mustString(timestamp)
	} else if _, ok := fields["timestamp"]; !ok {
		fields["timestamp"] = mustString(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	if prompt != "" {
		fields["designPrompt"] = mustString(prompt)
	} else if _, ok := fields["designPrompt"]; !ok {
		fields["designPrompt"] = mustString("")
	}
	if _, ok := fields["figmaDOM"]; !ok {
		fields["figmaDOM"] = json.RawMessage(`{}`)
	}

	screenshots := map[string]json.RawMessage{}
	if raw, ok := fields["screenshots"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &screenshots); err != nil {
			return nil, fmt.Errorf("screenshots must be an object: %w", err)
		}
	}
	for slot, path := range map[string]string{"before": before, "after": after} {
		if path == "" {
			continue
		}
		uri, err := encodePNG(path)
		if err != nil {
			return nil, err
		}
		screenshots[slot] = mustString(uri)
	}
	data, err := json.Marshal(screenshots)
	if err != nil {
		return nil, err
	}
	fields["screenshots"] = data

	return json.Marshal(fields)
}

// encodePNG 读取图片文件并编码为 data URI。
func encodePNG(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func mustString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
