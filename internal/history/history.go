// Package history records which rooms a user has joined.
package history

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyUser    = errors.New("user id is required")
	ErrEmptyRoomKey = errors.New("room key is required")
)

// Meeting is one joined call.
type Meeting struct {
	RoomKey   string    `json:"room_key" msgpack:"room_key"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// Service stores and lists meetings per user. ListMeetings returns newest first.
type Service interface {
	RecordMeeting(ctx context.Context, userID, roomKey string, ts time.Time) error
	ListMeetings(ctx context.Context, userID string) ([]Meeting, error)
	Backend() string
}

func validate(userID, roomKey string) error {
	if userID == "" {
		return ErrEmptyUser
	}
	if roomKey == "" {
		return ErrEmptyRoomKey
	}
	return nil
}
