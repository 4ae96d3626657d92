package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Service owns the shared user registry and room store together with the
// set of open sessions the delivery loop walks.
type Service struct {
	users       *Registry
	rooms       *RoomStore
	logger      *slog.Logger
	maxMessages int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxRoomMessages caps every room log to its most recent n messages.
func WithMaxRoomMessages(n int) Option {
	return func(s *Service) {
		s.maxMessages = n
	}
}

// NewService creates a service with an empty registry and room store.
func NewService(opts ...Option) *Service {
	s := &Service{
		users:    NewRegistry(),
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rooms = NewRoomStore(s.maxMessages)
	return s
}

// Open starts an anonymous session for a new connection. Room logs for the
// session are handed to pusher by the delivery loop.
func (s *Service) Open(pusher Pusher) *Session {
	id := uuid.NewString()
	sess := &Session{
		id:     id,
		pusher: pusher,
		users:  s.users,
		rooms:  s.rooms,
		logger: s.logger.With("session", id),
		state:  StateAnonymous,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.logger.Debug("Session opened", "session", id, "sessions", count)
	return sess
}

// Close disconnects the session and stops delivering to it. Closing a
// session twice is a no-op.
func (s *Service) Close(sess *Session) {
	if sess == nil {
		return
	}

	s.mu.Lock()
	_, ok := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return
	}
	sess.Disconnect()
	s.logger.Debug("Session closed", "session", sess.id, "sessions", count)
}

// User answers the out-of-band user query.
func (s *Service) User(id string) (User, bool) {
	return s.users.Lookup(id)
}

// Users returns the shared registry.
func (s *Service) Users() *Registry {
	return s.users
}

// Rooms returns the shared room store.
func (s *Service) Rooms() *RoomStore {
	return s.rooms
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) sessionSnapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}
