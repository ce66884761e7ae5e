// internal/mediatypes/blob_store.go
package mediatypes

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned by Delete for an unknown reference.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore 定义了图片等二进制文件的存储接口。
// 接口放在独立的包中，以打破 storage 和 services 之间的循环依赖。
type BlobStore interface {
	// Store 将 reader 中的内容写入存储系统，size 必须与实际写入的字节数一致。
	Store(ctx context.Context, reader io.Reader, size int64, fileName string, mimeType string) (*FileInfo, error)

	// Delete 释放 Store 返回的引用。
	Delete(ctx context.Context, ref string) error

	// URL 返回引用对应的访问地址，空引用返回空字符串。
	URL(ref string) string
}
