package chat

import (
	"sync"

	"github.com/google/uuid"
)

// User is a registered display name bound to one connection.
type User struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
}

// SystemUser authors join notices.
var SystemUser = User{ID: "0", Username: "system"}

// Registry maps user ids to registered users and keeps usernames unique.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]User
	byName map[string]string
	newID  func() string
}

// NewRegistry creates an empty registry that allocates random UUIDs.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]User),
		byName: make(map[string]string),
		newID:  func() string { return uuid.NewString() },
	}
}

// Register stores a new user under a fresh id. It returns false without
// creating anything when the username already belongs to a registered user.
func (r *Registry) Register(username string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[username]; taken {
		return User{}, false
	}

	user := User{ID: r.newID(), Username: username}
	r.byID[user.ID] = user
	r.byName[username] = user.ID
	return user, true
}

// Lookup returns the user registered under id.
func (r *Registry) Lookup(id string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	return user, ok
}

// Remove deletes the user. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if r.byName[user.Username] == id {
		delete(r.byName, user.Username)
	}
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
