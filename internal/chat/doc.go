// Package chat holds the in-memory state of the room relay: the user
// registry, the room store, the per-connection session state machine and the
// periodic delivery loop that pushes room logs to connected members.
//
// Nothing outside this package mutates room membership or message logs; the
// transport layer only drives Session transitions and implements Pusher.
package chat
