package models

import "time"

// Post is an image post with an optional caption.
// It spells out BaseModel's fields so CreatedAt can join the owner index
// that feed queries (owner_id IN ? ORDER BY created_at DESC) walk.
type Post struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	OwnerID   uint      `gorm:"not null;index:idx_post_owner_created,priority:1" json:"ownerId"`
	ImageRef  string    `gorm:"type:varchar(255);not null" json:"-"`
	Caption   string    `gorm:"type:varchar(1024)" json:"caption"`
	CreatedAt time.Time `gorm:"index:idx_post_owner_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定 Post 模型的表名。
func (Post) TableName() string {
	return "posts"
}

// Comment is a comment on a post. Only its author and the post owner can see it.
type Comment struct {
	BaseModel
	PostID   uint   `gorm:"not null;index" json:"postId"`
	Post     *Post  `gorm:"constraint:OnDelete:CASCADE" json:"-"` // 外键：评论不能脱离帖子存在
	AuthorID uint   `gorm:"not null;index" json:"authorId"`
	Text     string `gorm:"type:text;not null" json:"text"`
}

// TableName 指定 Comment 模型的表名。
func (Comment) TableName() string {
	return "comments"
}

// CommentView is a comment with its author's public info.
type CommentView struct {
	Comment
	Author *UserBasicInfo `json:"author"`
}

// PostView is a post prepared for a particular viewer: image URL resolved,
// owner info attached and comments already filtered for that viewer.
type PostView struct {
	Post
	ImageURL string         `json:"imageUrl"`
	Owner    *UserBasicInfo `json:"owner"`
	Comments []*CommentView `json:"comments"`
}

// FeedPage is one page of a viewer's feed.
type FeedPage struct {
	Posts      []*PostView `json:"posts"`
	HasMore    bool        `json:"hasMore"`
	NextCursor string      `json:"nextCursor,omitempty"`
}
