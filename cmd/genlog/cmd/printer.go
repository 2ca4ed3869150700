// Package cmd 提供 genlog 命令行工具的所有子命令实现。
// 本文件实现输出格式化，支持 table、json、yaml 三种格式。
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// promptWidth 是表格中设计提示词的最大显示宽度。
const promptWidth = 48

// Printer 根据配置的输出格式将数据写入 writer。
type Printer struct {
	format string
	writer io.Writer
}

// NewPrinter 创建一个 Printer，输出格式取自 viper 的 output 配置，默认 table。
func NewPrinter(w io.Writer) *Printer {
	format := viper.GetString("output")
	if format == "" {
		format = "table"
	}
	return &Printer{format: format, writer: w}
}

// PrintStatus 打印服务状态。
func (p *Printer) PrintStatus(s *Status) error {
	switch p.format {
	case "json":
		return p.printJSON(s)
	case "yaml":
		return p.printYAML(s)
	}

	ready := "yes"
	if !s.Ready {
		ready = "no"
		if s.ReadyDetail != "" {
			ready += " (" + s.ReadyDetail + ")"
		}
	}
	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Server:\t%s\n", s.Server)
	fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	fmt.Fprintf(w, "Health:\t%s\n", s.Health)
	fmt.Fprintf(w, "Log store ready:\t%s\n", ready)
	return w.Flush()
}

// PrintLogs 打印日志列表。表格中的序号是记录在日志中的绝对位置。
func (p *Printer) PrintLogs(list *LogList) error {
	switch p.format {
	case "json":
		return p.printJSON(list)
	case "yaml":
		return p.printYAML(list)
	}

	if len(list.Logs) == 0 {
		fmt.Fprintf(p.writer, "No logs found (total %d).\n", list.Total)
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTIMESTAMP\tPROMPT\tBEFORE\tAFTER")
	first := list.Total - len(list.Logs)
	for i, raw := range list.Logs {
		var rec recordSummary
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("failed to parse log %d: %w", first+i, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			first+i, rec.Timestamp, truncate(rec.DesignPrompt, promptWidth),
			orDash(rec.Screenshots.Before), orDash(rec.Screenshots.After))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.writer, "\nShowing %d of %d logs.\n", len(list.Logs), list.Total)
	return nil
}

// PrintSubmitResult 打印提交结果。
func (p *Printer) PrintSubmitResult(r *SubmitResponse) error {
	switch p.format {
	case "json":
		return p.printJSON(r)
	case "yaml":
		return p.printYAML(r)
	}
	fmt.Fprintf(p.writer, "%s (index %d, timestamp %s)\n", r.Message, r.LogIndex, r.Timestamp)
	return nil
}

// PrintStreamMessage 打印实时推送的一条记录。
func (p *Printer) PrintStreamMessage(m *StreamMessage) error {
	switch p.format {
	case "json":
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.writer, string(data))
		return err
	case "yaml":
		return p.printYAML(m)
	}

	var rec recordSummary
	if err := json.Unmarshal(m.Record, &rec); err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}
	fmt.Fprintf(p.writer, "#%d\t%s\t%s\tbefore=%s\tafter=%s\n",
		m.LogIndex, rec.Timestamp, truncate(rec.DesignPrompt, promptWidth),
		orDash(rec.Screenshots.Before), orDash(rec.Screenshots.After))
	return nil
}

func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printYAML 以 YAML 格式输出数据。
// 先经过一次 JSON 往返，使原始 JSON 字段按内容而不是字节输出。
func (p *Printer) printYAML(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
