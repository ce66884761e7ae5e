package models

import (
	"errors"
	"time"
)

// FriendshipStatus 定义好友关系记录的状态
type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// ErrSelfPair is returned when a pair is built from a single user.
var ErrSelfPair = errors.New("a pair needs two distinct users")

// Pair is an unordered pair of distinct users stored with Low < High.
type Pair struct {
	Low  uint
	High uint
}

// CanonicalPair orders a and b so that (a, b) and (b, a) give the same Pair.
func CanonicalPair(a, b uint) (Pair, error) {
	if a == b {
		return Pair{}, ErrSelfPair
	}
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

// Contains reports whether u is one of the two users.
func (p Pair) Contains(u uint) bool {
	return p.Low == u || p.High == u
}

// Other returns the user in the pair that is not u.
// The result is meaningless if u is not in the pair.
func (p Pair) Other(u uint) uint {
	if p.Low == u {
		return p.High
	}
	return p.Low
}

// Friendship is the single record kept for a pair of users, whether the request
// is still pending or has been accepted. Declining, cancelling or removing
// deletes the row.
type Friendship struct {
	BaseModel
	LowID       uint             `gorm:"not null;uniqueIndex:idx_friendship_pair;index:idx_friendship_low_status,priority:1" json:"lowId"`
	HighID      uint             `gorm:"not null;uniqueIndex:idx_friendship_pair;index:idx_friendship_high_status,priority:1" json:"highId"`
	Status      FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_friendship_low_status,priority:2;index:idx_friendship_high_status,priority:2" json:"status"`
	RequesterID uint             `gorm:"not null" json:"requesterId"`
	AcceptedAt  *time.Time       `json:"acceptedAt,omitempty"`
}

// TableName 指定 Friendship 模型的表名。
func (Friendship) TableName() string {
	return "friendships"
}

// Pair returns the canonical pair of this record.
func (f *Friendship) Pair() Pair {
	return Pair{Low: f.LowID, High: f.HighID}
}

// RecipientID returns the user who received the request.
func (f *Friendship) RecipientID() uint {
	return f.Pair().Other(f.RequesterID)
}

// FriendshipView is a friendship as seen by one of its two parties.
type FriendshipView struct {
	ID          uint             `json:"id"`
	Status      FriendshipStatus `json:"status"`
	RequesterID uint             `json:"requesterId"`
	Other       *UserBasicInfo   `json:"user"`
	CreatedAt   time.Time        `json:"createdAt"`
	AcceptedAt  *time.Time       `json:"acceptedAt,omitempty"`
}

// RelationshipStatus is the relation between a viewer and another user.
type RelationshipStatus string

const (
	RelationshipNone            RelationshipStatus = "none"
	RelationshipFriends         RelationshipStatus = "friends"
	RelationshipRequestSent     RelationshipStatus = "request_sent"
	RelationshipRequestReceived RelationshipStatus = "request_received"
	RelationshipSelf            RelationshipStatus = "self"
)

// FriendshipStatusView answers "what is my relation to this user".
type FriendshipStatusView struct {
	Status       RelationshipStatus `json:"status"`
	FriendshipID uint               `json:"friendshipId,omitempty"`
}
