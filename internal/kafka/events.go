package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ActivityType names a friendship or post lifecycle event.
type ActivityType string

const (
	FriendshipRequested ActivityType = "friendship.requested"
	FriendshipAccepted  ActivityType = "friendship.accepted"
	FriendshipRemoved   ActivityType = "friendship.removed"
	PostCreated         ActivityType = "post.created"
	PostDeleted         ActivityType = "post.deleted"
)

// ActivityEvent is the JSON payload written to the activity topic.
type ActivityEvent struct {
	Type       ActivityType `json:"type"`
	ActorID    uint         `json:"actorId"`
	SubjectID  uint         `json:"subjectId,omitempty"` // other user of a friendship
	ObjectID   uint         `json:"objectId"`            // friendship or post ID
	OccurredAt time.Time    `json:"occurredAt"`
}

// Key partitions events by actor so each user's events stay ordered.
func (e ActivityEvent) Key() []byte {
	return []byte(strconv.FormatUint(uint64(e.ActorID), 10))
}

func (e ActivityEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeActivityEvent parses a payload written by Encode.
func DecodeActivityEvent(payload []byte) (ActivityEvent, error) {
	var e ActivityEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode activity event: %w", err)
	}
	if e.Type == "" {
		return e, fmt.Errorf("decode activity event: missing type")
	}
	return e, nil
}
