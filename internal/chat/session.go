package chat

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// State is the position of a session in its lifecycle.
type State int

const (
	// StateAnonymous means no user is bound to the connection.
	StateAnonymous State = iota
	// StateRegistered means a user is bound but not in any room.
	StateRegistered
	// StateInRoom means the bound user is a member of a room.
	StateInRoom
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateRegistered:
		return "registered"
	case StateInRoom:
		return "in_room"
	default:
		return "unknown"
	}
}

// Pusher delivers a room log to one connection. Push must not block; it
// reports whether the log was accepted for delivery.
type Pusher interface {
	Push(messages []Message) bool
}

// Snapshot is a consistent read of a session's state.
type Snapshot struct {
	State  State
	UserID string
	RoomID string
}

// Session is the state machine bound to one live connection. Each inbound
// event is one transition; transitions are serialized by mu.
type Session struct {
	id     string
	pusher Pusher
	users  *Registry
	rooms  *RoomStore
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	userID string
	roomID string
	closed bool
}

// ID returns the connection-scoped session id.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state, user id and room id.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, UserID: s.userID, RoomID: s.roomID}
}

// guard keeps a faulting handler from taking down the connection.
func (s *Session) guard(op string) {
	if r := recover(); r != nil {
		s.logger.Error("Session handler panicked",
			"op", op,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

// RequestIdentity registers username and binds the new user to the session.
// It returns false, and the caller must not confirm anything, when the
// username is taken or the session is already in a room.
func (s *Session) RequestIdentity(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("requestIdentity")

	if s.closed {
		s.logger.Debug("Event after disconnect ignored", "op", "requestIdentity")
		return User{}, false
	}

	if s.state == StateInRoom {
		s.logger.Debug("Identity request ignored while in room", "roomID", s.roomID)
		return User{}, false
	}

	user, ok := s.users.Register(username)
	if !ok {
		s.logger.Debug("Username already registered", "username", username)
		return User{}, false
	}

	if s.state == StateRegistered {
		s.users.Remove(s.userID)
	}
	s.userID = user.ID
	s.state = StateRegistered

	s.logger.Info("User registered", "userID", user.ID, "username", username)
	return user, true
}

// JoinRoom makes the session's user a member of roomID, creating the room
// when needed. A session already in another room leaves it first.
func (s *Session) JoinRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("joinRoom")

	if s.closed {
		s.logger.Debug("Event after disconnect ignored", "op", "joinRoom")
		return
	}

	if s.state == StateAnonymous {
		s.logger.Debug("Join ignored for anonymous session", "roomID", roomID)
		return
	}

	user, ok := s.users.Lookup(s.userID)
	if !ok {
		s.logger.Warn("Join aborted", "userID", s.userID, "error", ErrUserNotFound)
		return
	}

	if s.state == StateInRoom {
		if s.roomID == roomID {
			s.logger.Debug("Already in room", "userID", user.ID, "roomID", roomID)
			return
		}
		if _, _, err := s.rooms.Leave(s.roomID, user); err != nil {
			s.logger.Warn("Failed to leave previous room", "userID", user.ID, "error", err)
		}
	}

	// The session always names the room whose cleanup is still owed, so a
	// fault inside Join leaves a membership that LeaveRoom or Disconnect
	// removes.
	s.roomID = roomID
	s.state = StateInRoom
	s.rooms.Join(roomID, user)

	s.logger.Info("User joined room", "userID", user.ID, "roomID", roomID)
}

// LeaveRoom removes the session's user from its room and from the registry.
// The session returns to StateAnonymous.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("leaveRoom")

	if s.closed {
		s.logger.Debug("Event after disconnect ignored", "op", "leaveRoom")
		return
	}

	if s.state != StateInRoom {
		s.logger.Debug("Leave ignored outside a room", "state", s.state)
		return
	}
	s.leaveLocked()
}

// SendMessage appends a user message to the session's room. It is dropped
// when the session is not in a room.
func (s *Session) SendMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("sendMessage")

	if s.closed {
		s.logger.Debug("Event after disconnect ignored", "op", "sendMessage")
		return
	}

	if s.state != StateInRoom {
		s.logger.Debug("Message dropped outside a room", "state", s.state)
		return
	}

	user, ok := s.users.Lookup(s.userID)
	if !ok {
		s.logger.Warn("Message dropped", "userID", s.userID, "error", ErrUserNotFound)
		return
	}

	if err := s.rooms.Append(s.roomID, Message{Author: user, Content: content, Kind: KindUser}); err != nil {
		s.logger.Warn("Message dropped", "userID", user.ID, "error", err)
	}
}

// Disconnect releases everything the session holds after its connection is
// gone. Events arriving afterwards are ignored.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("disconnect")

	s.closed = true
	switch s.state {
	case StateInRoom:
		s.leaveLocked()
	case StateRegistered:
		s.users.Remove(s.userID)
		s.logger.Info("Registered user released", "userID", s.userID)
		s.reset()
	}
}

func (s *Session) leaveLocked() {
	roomID, userID := s.roomID, s.userID

	user, ok := s.users.Lookup(userID)
	if !ok {
		user = User{ID: userID}
	}

	removed, deleted, err := s.rooms.Leave(roomID, user)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		s.logger.Warn("Room vanished before leave", "userID", userID, "roomID", roomID)
	case err != nil:
		s.logger.Error("Failed to leave room", "userID", userID, "roomID", roomID, "error", err)
	case !removed:
		s.logger.Warn("User was not a room member", "userID", userID, "roomID", roomID)
	}

	s.users.Remove(userID)
	s.reset()

	s.logger.Info("User left room", "userID", userID, "roomID", roomID, "roomDeleted", deleted)
}

func (s *Session) reset() {
	s.state = StateAnonymous
	s.userID = ""
	s.roomID = ""
}
