package apiserver

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"friendfeed/internal/apperrors"
	"friendfeed/internal/middleware"

	"github.com/gorilla/mux"
)

const (
	defaultMaxMemory = 1 << 20 // multipart 表单中非文件部分保存在内存中的上限
	formOverhead     = 1 << 20
)

var errUnsupportedImage = apperrors.Validation("UNSUPPORTED_IMAGE", "file must be a JPEG, PNG, GIF or WebP image")

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// imageUpload 是从 multipart 表单中取出的图片。
type imageUpload struct {
	file     multipart.File
	size     int64
	fileName string
	mimeType string
}

func (u *imageUpload) Close() error { return u.file.Close() }

// readImageUpload 解析 multipart 表单并取出 field 字段中的图片。
// 超过 maxBytes 的文件在读入之前就被拒绝；MIME 类型由内容嗅探决定，不信任客户端声明。
// 返回 false 时错误响应已经写出。
func readImageUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (*imageUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeServiceError(w, r, apperrors.ErrImageTooLarge)
		} else {
			writeJSONError(w, "invalid multipart form", http.StatusBadRequest)
		}
		return nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeServiceError(w, r, apperrors.ErrImageRequired)
		} else {
			writeJSONError(w, "invalid file field", http.StatusBadRequest)
		}
		return nil, false
	}
	if header.Size > maxBytes {
		file.Close()
		writeServiceError(w, r, apperrors.ErrImageTooLarge)
		return nil, false
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		file.Close()
		writeJSONError(w, "could not read uploaded file", http.StatusBadRequest)
		return nil, false
	}
	mimeType := http.DetectContentType(sniff[:n])
	if !allowedImageTypes[mimeType] {
		file.Close()
		writeServiceError(w, r, errUnsupportedImage)
		return nil, false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		writeJSONError(w, "could not read uploaded file", http.StatusBadRequest)
		return nil, false
	}

	log.Printf("收到上传文件: 名称=%s, 大小=%d, 类型=%s", header.Filename, header.Size, mimeType)
	return &imageUpload{file: file, size: header.Size, fileName: header.Filename, mimeType: mimeType}, true
}

// callerID 从上下文中取出已认证的用户ID。认证中间件之后不应失败。
func callerID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
	}
	return userID, ok
}

// pathID 解析路径参数中的数字 ID。
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		writeJSONError(w, "invalid "+strings.TrimSuffix(name, "ID")+" id", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}
