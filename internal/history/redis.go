package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// maxEntries caps the per-user sorted set.
const maxEntries = 100

// RedisStore keeps each user's meetings in a sorted set scored by join time.
// Members are msgpack-encoded Meeting records.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func historyKey(userID string) string {
	return "history:" + userID
}

func (s *RedisStore) RecordMeeting(ctx context.Context, userID, roomKey string, ts time.Time) error {
	if err := validate(userID, roomKey); err != nil {
		return err
	}

	data, err := msgpack.Marshal(Meeting{RoomKey: roomKey, Timestamp: ts.UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode meeting: %w", err)
	}

	key := historyKey(userID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts.UnixMilli()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, -maxEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record meeting: %w", err)
	}
	return nil
}

func (s *RedisStore) ListMeetings(ctx context.Context, userID string) ([]Meeting, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}

	raw, err := s.client.ZRevRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	meetings := make([]Meeting, 0, len(raw))
	for _, item := range raw {
		var m Meeting
		if err := msgpack.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to decode meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (s *RedisStore) Backend() string { return "redis" }
