package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const membershipTTL = 24 * time.Hour

// RoomMirror copies relay membership into Redis sets so other tooling can
// observe who is in which room. The relay never reads it back.
type RoomMirror struct {
	client *redis.Client
}

func NewRoomMirror(client *redis.Client) *RoomMirror {
	return &RoomMirror{client: client}
}

func peersKey(roomKey string) string {
	return "room:" + roomKey + ":peers"
}

func (m *RoomMirror) Joined(ctx context.Context, roomKey, id string) error {
	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, peersKey(roomKey), id)
	pipe.Expire(ctx, peersKey(roomKey), membershipTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Left removes id; Redis drops the set itself once it is empty.
func (m *RoomMirror) Left(ctx context.Context, roomKey, id string) error {
	return m.client.SRem(ctx, peersKey(roomKey), id).Err()
}
