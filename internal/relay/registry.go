package relay

import (
	"errors"
	"slices"
	"sync"
)

var (
	ErrEmptyRoomKey  = errors.New("room key is required")
	ErrEmptyID       = errors.New("participant id is required")
	ErrAlreadyInRoom = errors.New("participant is already in another room")
)

// Registry maps room keys to the participants currently connected to them.
// It is the authoritative answer to "who is in this call".
//
// Rooms are created on first join and discarded when the last member leaves;
// nothing is persisted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}

	// participant id -> room key
	memberOf map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]struct{}),
		memberOf: make(map[string]string),
	}
}

// Join adds id to roomKey and returns the members that were already there.
// Joining the room the participant already occupies is idempotent.
func (r *Registry) Join(roomKey, id string) ([]string, error) {
	if roomKey == "" {
		return nil, ErrEmptyRoomKey
	}
	if id == "" {
		return nil, ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.memberOf[id]; ok && current != roomKey {
		return nil, ErrAlreadyInRoom
	}

	room, ok := r.rooms[roomKey]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[roomKey] = room
	}

	existing := make([]string, 0, len(room))
	for member := range room {
		if member != id {
			existing = append(existing, member)
		}
	}
	slices.Sort(existing)

	room[id] = struct{}{}
	r.memberOf[id] = roomKey
	return existing, nil
}

// Leave removes id from whichever room it occupies. ok is false when the
// participant was not in a room, which covers duplicate disconnects.
func (r *Registry) Leave(id string) (roomKey string, remaining []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomKey, ok = r.memberOf[id]
	if !ok {
		return "", nil, false
	}
	delete(r.memberOf, id)

	room := r.rooms[roomKey]
	delete(room, id)
	if len(room) == 0 {
		delete(r.rooms, roomKey)
		return roomKey, nil, true
	}

	return roomKey, sortedMembers(room), true
}

// RoomOf reports the room a participant is in.
func (r *Registry) RoomOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomKey, ok := r.memberOf[id]
	return roomKey, ok
}

// SameRoom reports whether both participants are members of the same room.
func (r *Registry) SameRoom(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ra, ok := r.memberOf[a]
	if !ok {
		return false
	}
	rb, ok := r.memberOf[b]
	return ok && ra == rb
}

// Members returns a sorted snapshot of a room's membership.
func (r *Registry) Members(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}
	return sortedMembers(room)
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func sortedMembers(room map[string]struct{}) []string {
	members := make([]string, 0, len(room))
	for id := range room {
		members = append(members, id)
	}
	slices.Sort(members)
	return members
}
