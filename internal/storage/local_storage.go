package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"friendfeed/internal/config"
	"friendfeed/internal/mediatypes"
)

// LocalBlobStore 实现了 mediatypes.BlobStore 接口，把文件保存在本地目录。
type LocalBlobStore struct {
	basePath string // 本地存储的基础路径，例如 "./uploads"
	baseURL  string // 用于构建文件访问 URL 的基础 URL，例如 "/uploads"
}

// NewLocalBlobStore 创建一个新的 LocalBlobStore 实例，并确保存储目录存在。
func NewLocalBlobStore(cfg config.StorageConfig) (*LocalBlobStore, error) {
	if cfg.Type != "" && cfg.Type != "local" {
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败 '%s': %w", cfg.LocalPath, err)
	}
	return &LocalBlobStore{
		basePath: cfg.LocalPath,
		baseURL:  cfg.BaseURL,
	}, nil
}

// Store 将文件保存到本地文件系统，引用是生成的唯一文件名。
func (s *LocalBlobStore) Store(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*mediatypes.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 生成一个唯一的文件名，保留原始扩展名
	ext := filepath.Ext(fileName)
	if ext == "" {
		extensions, _ := mime.ExtensionsByType(mimeType)
		if len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	ref := uuid.New().String() + ext
	dstPath := filepath.Join(s.basePath, ref)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("创建目标文件失败 '%s': %w", dstPath, err)
	}
	defer dst.Close()

	// 多读一个字节，用来发现比声明更大的内容
	written, err := io.Copy(dst, io.LimitReader(reader, size+1))
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}
	if written != size {
		os.Remove(dstPath)
		return nil, fmt.Errorf("文件大小不匹配: 预期 %d, 实际写入 %d", size, written)
	}

	return &mediatypes.FileInfo{
		Ref:      ref,
		URL:      s.URL(ref),
		Size:     size,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}

// Delete 删除引用对应的文件。
func (s *LocalBlobStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// 引用只能是 Store 生成的文件名，拒绝路径穿越
	if ref == "" || ref != filepath.Base(ref) {
		return mediatypes.ErrBlobNotFound
	}
	err := os.Remove(filepath.Join(s.basePath, ref))
	if os.IsNotExist(err) {
		return mediatypes.ErrBlobNotFound
	}
	return err
}

// URL 返回引用的访问地址。
func (s *LocalBlobStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(ref)
}
