package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oriys/genlog/internal/domain"
)

// MediaDirName 是媒体子目录名，同时是记录中相对路径的前缀。
const MediaDirName = "media"

// MediaStore 将解码后的截图写入媒体目录。
type MediaStore struct {
	dir string
}

// NewMediaStore 创建 MediaStore，媒体目录位于 dataDir/media。
func NewMediaStore(dataDir string) (*MediaStore, error) {
	dir := filepath.Join(dataDir, MediaDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure media dir: %v", domain.ErrStorageIO, err)
	}
	return &MediaStore{dir: dir}, nil
}

// Dir 返回媒体目录的绝对或相对路径。
func (m *MediaStore) Dir() string {
	return m.dir
}

// Write 将图片字节写入 <dir>/<token>-<slot>.png，返回记录中使用的相对路径。
// 同名文件会被覆盖；写入失败时不会留下不完整的文件。
func (m *MediaStore) Write(ctx context.Context, token, slot string, data []byte) (string, error) {
	if strings.ContainsAny(token, `/\`) {
		return "", fmt.Errorf("%w: %q contains a path separator", domain.ErrInvalidToken, token)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := domain.MediaFileName(token, slot)
	if err := writeFileAtomic(filepath.Join(m.dir, name), data); err != nil {
		return "", err
	}
	return path.Join(MediaDirName, name), nil
}
