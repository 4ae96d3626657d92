package chat

import "errors"

var (
	// ErrRoomNotFound is returned when a room id does not resolve to a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUserNotFound is returned when a user id is not registered.
	ErrUserNotFound = errors.New("user not found")
)
