package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/oriys/genlog/internal/domain"
)

// FileStore 将全部记录保存为一个缩进两格的 JSON 数组文件。
//
// 每次追加都会读取整个文件、追加记录并重写。读-改-写过程由互斥锁串行化，
// 同一进程内的并发提交不会丢失更新；多个进程共享同一文件时不提供保护。
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore 创建 FileStore，必要时创建目录并以空数组初始化文件。
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure log dir: %v", domain.ErrStorageIO, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeFileAtomic(path, []byte("[]\n")); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", domain.ErrStorageIO, path, err)
	}
	return &FileStore{path: path}, nil
}

// Path 返回日志文件路径。
func (s *FileStore) Path() string {
	return s.path
}

// Append 追加一条记录并返回其序号。
func (s *FileStore) Append(ctx context.Context, rec *domain.Record) (int, error) {
	raw, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	records, err := s.loadUnlocked()
	if err != nil {
		return 0, err
	}
	records = append(records, raw)

	if err := s.saveUnlocked(records); err != nil {
		return 0, err
	}
	return len(records) - 1, nil
}

// Tail 返回记录总数以及末尾最多 limit 条记录。
func (s *FileStore) Tail(ctx context.Context, limit int) (int, []json.RawMessage, error) {
	s.mu.Lock()
	records, err := s.loadUnlocked()
	s.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}
	return len(records), tail(records, limit), nil
}

// Ping 检查日志文件可读且为合法的 JSON 数组。
func (s *FileStore) Ping(ctx context.Context) error {
	_, _, err := s.Tail(ctx, 0)
	return err
}

// loadUnlocked 读取并解析整个文件，调用方需持有锁。
// 文件不存在时视为空日志。
func (s *FileStore) loadUnlocked() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStorageIO, s.path, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptLog, s.path, err)
	}
	if records == nil {
		// 文件内容为 null
		return nil, fmt.Errorf("%w: %s: not an array", domain.ErrCorruptLog, s.path)
	}
	return records, nil
}

// saveUnlocked 以两格缩进序列化全部记录并原子替换文件，调用方需持有锁。
func (s *FileStore) saveUnlocked(records []json.RawMessage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	return writeFileAtomic(s.path, buf.Bytes())
}
