package chat

import (
	"fmt"
	"slices"
	"sync"
)

// Room is a named group of members sharing one ordered message log.
// Its fields are only touched through RoomStore while holding mu.
type Room struct {
	mu       sync.Mutex
	id       string
	members  []string
	messages []Message
	closed   bool
}

func newRoom(id string) *Room {
	return &Room{id: id}
}

// ID returns the room name.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) appendLocked(msg Message, limit int) {
	r.messages = append(r.messages, msg)
	if limit > 0 && len(r.messages) > limit {
		r.messages = slices.Clone(r.messages[len(r.messages)-limit:])
	}
}

// RoomStore maps room ids to rooms. The store mutex guards the map; each
// room carries its own lock for members and messages. Locks are always
// taken store first, room second.
type RoomStore struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	maxMessages int
}

// NewRoomStore creates an empty store. maxMessages caps each room's log to
// its most recent entries; zero or less keeps the whole log.
func NewRoomStore(maxMessages int) *RoomStore {
	return &RoomStore{
		rooms:       make(map[string]*Room),
		maxMessages: maxMessages,
	}
}

// GetOrCreate returns the room with the given id, creating an empty one if
// it does not exist.
func (s *RoomStore) GetOrCreate(id string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		room = newRoom(id)
		s.rooms[id] = room
	}
	return room
}

func (s *RoomStore) get(id string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

// Join adds user to the room, creating the room if needed, and appends the
// join notice. It returns false and changes nothing when the user is already
// a member.
func (s *RoomStore) Join(id string, user User) bool {
	for {
		joined, retry := s.tryJoin(s.GetOrCreate(id), user)
		if !retry {
			return joined
		}
	}
}

// tryJoin reports retry when the room was emptied and removed between
// lookup and lock.
func (s *RoomStore) tryJoin(room *Room, user User) (joined, retry bool) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return false, true
	}
	if slices.Contains(room.members, user.ID) {
		return false, false
	}
	room.members = append(room.members, user.ID)
	room.appendLocked(joinNotice(user), s.maxMessages)
	return true, false
}

// Leave removes one membership of user from the room. When the room ends up
// empty it is removed from the store and deleted is true. The log is left
// untouched.
func (s *RoomStore) Leave(id string, user User) (removed, deleted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return false, false, fmt.Errorf("leave %q: %w", id, ErrRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	idx := slices.Index(room.members, user.ID)
	if idx >= 0 {
		room.members = slices.Delete(room.members, idx, idx+1)
		removed = true
	}

	if len(room.members) == 0 {
		room.closed = true
		delete(s.rooms, id)
		return removed, true, nil
	}

	return removed, false, nil
}

// Append adds msg to the end of the room's log.
func (s *RoomStore) Append(id string, msg Message) error {
	room, ok := s.get(id)
	if !ok {
		return fmt.Errorf("append to %q: %w", id, ErrRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return fmt.Errorf("append to %q: %w", id, ErrRoomNotFound)
	}
	room.appendLocked(msg, s.maxMessages)
	return nil
}

// Messages returns a copy of the room's log in append order.
func (s *RoomStore) Messages(id string) ([]Message, bool) {
	room, ok := s.get(id)
	if !ok {
		return nil, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, false
	}
	messages := make([]Message, len(room.messages))
	copy(messages, room.messages)
	return messages, true
}

// Members returns a copy of the room's member ids in join order.
func (s *RoomStore) Members(id string) ([]string, bool) {
	room, ok := s.get(id)
	if !ok {
		return nil, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, false
	}
	return slices.Clone(room.members), true
}

// Len returns the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
