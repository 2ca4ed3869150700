// Package storage 提供生成日志的持久化实现。
// 日志元数据保存在数据目录下的单个文件中（JSON 数组或 JSON Lines），
// 截图以 PNG 文件形式保存在 media 子目录下。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oriys/genlog/internal/domain"
)

// 支持的日志文件格式。
const (
	FormatArray = "array" // 单个缩进的 JSON 数组，每次追加重写整个文件
	FormatJSONL = "jsonl" // 每行一条紧凑记录，追加写入
)

// LogStore 定义日志元数据存储的接口。
//
// 方法说明：
//   - Append: 追加一条记录，返回其从 0 开始的序号
//   - Tail: 返回记录总数以及末尾最多 limit 条记录（按存储顺序）
//   - Ping: 检查日志文件可读且可解析
type LogStore interface {
	Append(ctx context.Context, rec *domain.Record) (int, error)
	Tail(ctx context.Context, limit int) (int, []json.RawMessage, error)
	Ping(ctx context.Context) error
}

// NewLogStore 根据格式创建日志存储，文件位于 dataDir 下。
func NewLogStore(format, dataDir string) (LogStore, error) {
	switch format {
	case "", FormatArray:
		return NewFileStore(filepath.Join(dataDir, "generation_logs.json"))
	case FormatJSONL:
		return NewLinesStore(filepath.Join(dataDir, "generation_logs.jsonl"))
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// tail 返回 records 末尾最多 limit 条。limit 为 0 时返回空切片。
func tail(records []json.RawMessage, limit int) []json.RawMessage {
	if limit < 0 {
		limit = 0
	}
	if limit > len(records) {
		limit = len(records)
	}
	out := make([]json.RawMessage, limit)
	copy(out, records[len(records)-limit:])
	return out
}

// encodeRecord 将记录编码为紧凑 JSON（不转义 HTML 字符，无结尾换行）。
func encodeRecord(rec *domain.Record) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// writeFileAtomic 先写入同目录下的临时文件再重命名，读者不会看到写了一半的文件。
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStorageIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrStorageIO, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", domain.ErrStorageIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", domain.ErrStorageIO, path, err)
	}
	return nil
}
