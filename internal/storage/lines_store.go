package storage

import (
	"bufio"
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

// LinesStore 以 JSON Lines 格式保存记录：每行一条紧凑记录，追加写入。
// 追加不需要重写整个文件，记录总数通过逐行扫描得到。
type LinesStore struct {
	path string
	mu   sync.Mutex
}

// NewLinesStore 创建 LinesStore，必要时创建目录与空文件。
func NewLinesStore(path string) (*LinesStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure log dir: %v", domain.ErrStorageIO, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: init log file: %v", domain.ErrStorageIO, err)
	}
	_ = f.Close()
	return &LinesStore{path: path}, nil
}

// Append 在文件末尾写入一行记录并返回其序号。
func (s *LinesStore) Append(ctx context.Context, rec *domain.Record) (int, error) {
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

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: open append: %v", domain.ErrStorageIO, err)
	}
	defer f.Close()

	line, err := terminatePrevious(f, raw)
	if err != nil {
		return 0, err
	}
	if _, err := f.Write(line); err != nil {
		return 0, fmt.Errorf("%w: append: %v", domain.ErrStorageIO, err)
	}
	return len(records), nil
}

// Tail 返回记录总数以及末尾最多 limit 条记录。
func (s *LinesStore) Tail(ctx context.Context, limit int) (int, []json.RawMessage, error) {
	s.mu.Lock()
	records, err := s.loadUnlocked()
	s.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}
	return len(records), tail(records, limit), nil
}

// Ping 检查日志文件可读且每一行都是合法记录。
func (s *LinesStore) Ping(ctx context.Context) error {
	_, _, err := s.Tail(ctx, 0)
	return err
}

func (s *LinesStore) loadUnlocked() ([]json.RawMessage, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open read: %v", domain.ErrStorageIO, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 64*1024*1024)

	records := []json.RawMessage{}
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("%w: %s: line %d is not valid JSON", domain.ErrCorruptLog, s.path, line)
		}
		records = append(records, json.RawMessage(bytes.Clone(b)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrStorageIO, err)
	}
	return records, nil
}

// terminatePrevious 返回待追加的一行；文件非空且最后一个字节不是换行时，
// 先补一个换行，避免新记录接在手工编辑留下的末行之后。
func terminatePrevious(f *os.File, raw []byte) ([]byte, error) {
	line := append(raw, '\n')
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %v", domain.ErrStorageIO, err)
	}
	if info.Size() == 0 {
		return line, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return nil, fmt.Errorf("%w: read tail: %v", domain.ErrStorageIO, err)
	}
	if last[0] == '\n' {
		return line, nil
	}
	return append([]byte{'\n'}, line...), nil
}
