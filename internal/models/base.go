package models

import "time"

// BaseModel defines the common fields for all models.
// Rows are hard-deleted: a declined or removed friendship must free its pair slot
// so a new request between the same two users can be inserted.
type BaseModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
