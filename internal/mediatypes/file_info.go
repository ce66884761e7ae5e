// internal/mediatypes/file_info.go
package mediatypes

// FileInfo 包含已存储 blob 的基本信息和访问路径。
type FileInfo struct {
	Ref      string `json:"ref"`      // 存储系统中的不透明引用，保存在 Post.ImageRef / User.AvatarRef
	URL      string `json:"url"`      // 可公开访问的文件 URL
	Size     int64  `json:"size"`     // 文件大小 (字节)
	MimeType string `json:"mimeType"` // 文件的 MIME 类型
	FileName string `json:"fileName"` // 原始文件名
}
