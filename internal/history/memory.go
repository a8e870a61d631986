package history

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps history in process memory. Used when Redis is not
// configured.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string][]Meeting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meetings: make(map[string][]Meeting)}
}

func (s *MemoryStore) RecordMeeting(_ context.Context, userID, roomKey string, ts time.Time) error {
	if err := validate(userID, roomKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[userID] = append(s.meetings[userID], Meeting{RoomKey: roomKey, Timestamp: ts.UTC()})
	return nil
}

func (s *MemoryStore) ListMeetings(_ context.Context, userID string) ([]Meeting, error) {
	if userID == "" {
		return nil, ErrEmptyUser
	}
	s.mu.RLock()
	out := slices.Clone(s.meetings[userID])
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Meeting) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) Backend() string { return "memory" }
