package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StateString(t *testing.T) {
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "in_room", StateInRoom.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSession_RequestIdentity(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)

	user, ok := sess.RequestIdentity("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", user.Username)

	snap := sess.Snapshot()
	assert.Equal(t, StateRegistered, snap.State)
	assert.Equal(t, user.ID, snap.UserID)
	assert.Empty(t, snap.RoomID)

	got, ok := svc.User(user.ID)
	require.True(t, ok)
	assert.Equal(t, user, got)
}

func TestSession_RequestIdentityDuplicate(t *testing.T) {
	svc := newTestService()
	first := svc.Open(nil)
	second := svc.Open(nil)

	_, ok := first.RequestIdentity("alice")
	require.True(t, ok)

	user, ok := second.RequestIdentity("alice")
	assert.False(t, ok)
	assert.Equal(t, User{}, user)
	assert.Equal(t, StateAnonymous, second.Snapshot().State)
	assert.Equal(t, 1, svc.Users().Len())
}

func TestSession_ReRegisterReplacesUser(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)

	old, _ := sess.RequestIdentity("alice")
	renamed, ok := sess.RequestIdentity("alicia")
	require.True(t, ok)

	_, ok = svc.User(old.ID)
	assert.False(t, ok)
	assert.Equal(t, renamed.ID, sess.Snapshot().UserID)
	assert.Equal(t, 1, svc.Users().Len())
}

func TestSession_RequestIdentityInRoomIsIgnored(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)
	user, _ := sess.RequestIdentity("alice")
	sess.JoinRoom("r1")

	_, ok := sess.RequestIdentity("other")
	assert.False(t, ok)

	snap := sess.Snapshot()
	assert.Equal(t, StateInRoom, snap.State)
	assert.Equal(t, user.ID, snap.UserID)
	assert.Equal(t, 1, svc.Users().Len())
}

func TestSession_JoinSendScenario(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)

	alice, ok := sess.RequestIdentity("alice")
	require.True(t, ok)
	sess.JoinRoom("r1")
	sess.SendMessage("hi")

	messages, ok := svc.Rooms().Messages("r1")
	require.True(t, ok)
	assert.Equal(t, []Message{
		{Author: SystemUser, Content: "alice connect to room!", Kind: KindSystem},
		{Author: alice, Content: "hi", Kind: KindUser},
	}, messages)
}

func TestSession_JoinRequiresIdentity(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)

	sess.JoinRoom("r1")

	assert.Equal(t, StateAnonymous, sess.Snapshot().State)
	assert.Equal(t, 0, svc.Rooms().Len())
}

func TestSession_SendOutsideRoomIsDropped(t *testing.T) {
	svc := newTestService()
	member := svc.Open(nil)
	member.RequestIdentity("alice")
	member.JoinRoom("r1")
	before, _ := svc.Rooms().Messages("r1")

	tests := []struct {
		name  string
		setup func(*Session)
	}{
		{name: "anonymous", setup: func(*Session) {}},
		{name: "registered", setup: func(s *Session) { s.RequestIdentity("bob") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := svc.Open(nil)
			tt.setup(sess)
			sess.SendMessage("nobody hears this")

			after, _ := svc.Rooms().Messages("r1")
			assert.Equal(t, before, after)
		})
	}
}

func TestSession_LeaveAsSoleMember(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)
	user, _ := sess.RequestIdentity("alice")
	sess.JoinRoom("r1")

	sess.LeaveRoom()

	assert.Equal(t, Snapshot{State: StateAnonymous}, sess.Snapshot())
	assert.Equal(t, 0, svc.Rooms().Len())
	_, ok := svc.User(user.ID)
	assert.False(t, ok)

	svc.Rooms().GetOrCreate("r1")
	messages, _ := svc.Rooms().Messages("r1")
	assert.Empty(t, messages)
}

func TestSession_LeaveSharedRoom(t *testing.T) {
	svc := newTestService()
	aliceSess := svc.Open(nil)
	bobSess := svc.Open(nil)

	alice, _ := aliceSess.RequestIdentity("alice")
	bob, _ := bobSess.RequestIdentity("bob")
	aliceSess.JoinRoom("r1")
	bobSess.JoinRoom("r1")

	aliceSess.LeaveRoom()

	members, ok := svc.Rooms().Members("r1")
	require.True(t, ok)
	assert.Equal(t, []string{bob.ID}, members)

	// Leaving posts nothing; the log keeps only the two join notices.
	messages, _ := svc.Rooms().Messages("r1")
	assert.Equal(t, []Message{
		{Author: SystemUser, Content: "alice connect to room!", Kind: KindSystem},
		{Author: SystemUser, Content: "bob connect to room!", Kind: KindSystem},
	}, messages)

	_, ok = svc.User(alice.ID)
	assert.False(t, ok)
	_, ok = svc.User(bob.ID)
	assert.True(t, ok)

	// Leaving always drops the identity, so rejoining needs a new one.
	aliceSess.JoinRoom("r1")
	assert.Equal(t, StateAnonymous, aliceSess.Snapshot().State)
	members, _ = svc.Rooms().Members("r1")
	assert.Equal(t, []string{bob.ID}, members)
}

func TestSession_JoinAnotherRoomLeavesPrevious(t *testing.T) {
	svc := newTestService()
	aliceSess := svc.Open(nil)
	bobSess := svc.Open(nil)

	alice, _ := aliceSess.RequestIdentity("alice")
	bob, _ := bobSess.RequestIdentity("bob")
	aliceSess.JoinRoom("r1")
	bobSess.JoinRoom("r1")

	aliceSess.JoinRoom("r2")

	r1, _ := svc.Rooms().Members("r1")
	assert.Equal(t, []string{bob.ID}, r1)
	r2, _ := svc.Rooms().Members("r2")
	assert.Equal(t, []string{alice.ID}, r2)

	snap := aliceSess.Snapshot()
	assert.Equal(t, StateInRoom, snap.State)
	assert.Equal(t, "r2", snap.RoomID)
	_, ok := svc.User(alice.ID)
	assert.True(t, ok)
}

func TestSession_JoinSameRoomTwice(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)
	alice, _ := sess.RequestIdentity("alice")

	sess.JoinRoom("r1")
	sess.JoinRoom("r1")

	members, _ := svc.Rooms().Members("r1")
	assert.Equal(t, []string{alice.ID}, members)
	messages, _ := svc.Rooms().Messages("r1")
	assert.Len(t, messages, 1)
}

func TestSession_Disconnect(t *testing.T) {
	t.Run("in room behaves like leave", func(t *testing.T) {
		svc := newTestService()
		sess := svc.Open(nil)
		user, _ := sess.RequestIdentity("alice")
		sess.JoinRoom("r1")

		sess.Disconnect()

		assert.Equal(t, StateAnonymous, sess.Snapshot().State)
		assert.Equal(t, 0, svc.Rooms().Len())
		_, ok := svc.User(user.ID)
		assert.False(t, ok)
	})

	t.Run("registered releases the username", func(t *testing.T) {
		svc := newTestService()
		sess := svc.Open(nil)
		sess.RequestIdentity("alice")

		sess.Disconnect()

		assert.Equal(t, 0, svc.Users().Len())
		_, ok := svc.Open(nil).RequestIdentity("alice")
		assert.True(t, ok)
	})

	t.Run("anonymous is a no-op", func(t *testing.T) {
		svc := newTestService()
		sess := svc.Open(nil)

		sess.Disconnect()
		sess.Disconnect()

		assert.Equal(t, StateAnonymous, sess.Snapshot().State)
	})
}

func TestService_Close(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)
	sess.RequestIdentity("alice")
	sess.JoinRoom("r1")
	require.Equal(t, 1, svc.SessionCount())

	svc.Close(sess)
	svc.Close(sess)
	svc.Close(nil)

	assert.Equal(t, 0, svc.SessionCount())
	assert.Equal(t, 0, svc.Rooms().Len())
	assert.Equal(t, 0, svc.Users().Len())
}

func TestSession_HandlerFaultIsContained(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		svc := newTestService()
		sess := svc.Open(nil)
		svc.users.newID = func() string { panic("id source failed") }

		var (
			user User
			ok   bool
		)
		require.NotPanics(t, func() { user, ok = sess.RequestIdentity("alice") })
		assert.False(t, ok)
		assert.Equal(t, User{}, user)
		assert.Equal(t, Snapshot{State: StateAnonymous}, sess.Snapshot())
		assert.Equal(t, 0, svc.Users().Len())

		svc.users.newID = func() string { return "u-1" }
		user, ok = sess.RequestIdentity("alice")
		require.True(t, ok)
		assert.Equal(t, User{ID: "u-1", Username: "alice"}, user)
		assert.Equal(t, StateRegistered, sess.Snapshot().State)
	})

	t.Run("join", func(t *testing.T) {
		svc := newTestService()
		sess := svc.Open(nil)
		_, ok := sess.RequestIdentity("alice")
		require.True(t, ok)

		// Writing to a nil room map faults inside the store.
		svc.rooms.rooms = nil
		require.NotPanics(t, func() { sess.JoinRoom("r1") })
		svc.rooms.rooms = make(map[string]*Room)

		snap := sess.Snapshot()
		assert.Equal(t, StateInRoom, snap.State)
		assert.Equal(t, "r1", snap.RoomID)

		sess.LeaveRoom()
		assert.Equal(t, Snapshot{State: StateAnonymous}, sess.Snapshot())
		assert.Equal(t, 0, svc.Users().Len())

		_, ok = sess.RequestIdentity("alice")
		require.True(t, ok)
		sess.JoinRoom("r1")
		members, _ := svc.Rooms().Members("r1")
		assert.Len(t, members, 1)
	})
}

func TestSession_EventsAfterCloseAreIgnored(t *testing.T) {
	svc := newTestService()
	sess := svc.Open(nil)
	svc.Close(sess)

	_, ok := sess.RequestIdentity("alice")
	assert.False(t, ok)
	sess.JoinRoom("r1")
	sess.SendMessage("late")
	sess.LeaveRoom()

	assert.Equal(t, Snapshot{State: StateAnonymous}, sess.Snapshot())
	assert.Equal(t, 0, svc.Users().Len())
	assert.Equal(t, 0, svc.Rooms().Len())

	_, ok = svc.Open(nil).RequestIdentity("alice")
	assert.True(t, ok, "name stays free")
}
