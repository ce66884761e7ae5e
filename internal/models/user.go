package models

// User 代表系统中的用户，同时携带公开的个人资料字段。
type User struct {
	BaseModel
	Username     string `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	Email        string `gorm:"type:varchar(254);uniqueIndex" json:"email,omitempty"`
	DisplayName  string `gorm:"type:varchar(255)" json:"displayName"`
	Bio          string `gorm:"type:text" json:"bio,omitempty"`
	Link         string `gorm:"type:varchar(255)" json:"link,omitempty"`
	AvatarRef    string `gorm:"type:varchar(255)" json:"-"` // blob reference of the profile picture
	AvatarURL    string `gorm:"-" json:"avatarUrl,omitempty"`
}

// UserBasicInfo holds minimal public information about a user.
// Used wherever a post, comment or friendship needs to show who is on the other end.
type UserBasicInfo struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"-"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}
