package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonchat/internal/content"
	"anonchat/internal/models"
	"anonchat/internal/store"
)

// fakeGateway records every delivery the coordinator asks for.
type fakeGateway struct {
	mu         sync.Mutex
	broadcasts []broadcast
	sends      []send
	kicked     map[string]string
	rooms      map[string]map[string]bool
}

type broadcast struct {
	roomID string
	except string
	event  *models.ServerEvent
}

type send struct {
	connID string
	event  *models.ServerEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		kicked: make(map[string]string),
		rooms:  make(map[string]map[string]bool),
	}
}

func (g *fakeGateway) AddToRoom(roomID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[roomID] == nil {
		g.rooms[roomID] = make(map[string]bool)
	}
	g.rooms[roomID][connID] = true
}

func (g *fakeGateway) RemoveFromRoom(roomID, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms[roomID], connID)
}

func (g *fakeGateway) Broadcast(roomID string, event *models.ServerEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, broadcast{roomID: roomID, event: event})
}

func (g *fakeGateway) BroadcastExcept(roomID, exceptConnID string, event *models.ServerEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, broadcast{roomID: roomID, except: exceptConnID, event: event})
}

func (g *fakeGateway) Send(connID string, event *models.ServerEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, send{connID: connID, event: event})
}

func (g *fakeGateway) Kick(connID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kicked[connID] = reason
}

func (g *fakeGateway) CloseRoom(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, roomID)
}

func (g *fakeGateway) eventsOfType(eventType models.EventType) []*models.ServerEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.ServerEvent
	for _, b := range g.broadcasts {
		if b.event.Type == eventType {
			out = append(out, b.event)
		}
	}
	return out
}

func (g *fakeGateway) sentTo(connID string) []*models.ServerEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.ServerEvent
	for _, s := range g.sends {
		if s.connID == connID {
			out = append(out, s.event)
		}
	}
	return out
}

type testEnv struct {
	store   *store.Store
	gateway *fakeGateway
	coord   *Coordinator
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv(t *testing.T, opts ...store.Option) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	opts = append([]store.Option{store.WithClock(clock.Now)}, opts...)
	s := store.New(opts...)
	gw := newFakeGateway()
	return &testEnv{
		store:   s,
		gateway: gw,
		coord:   NewCoordinator(s, gw),
		clock:   clock,
	}
}

func (e *testEnv) createRoom(t *testing.T, ttl int) *models.Room {
	t.Helper()
	room, err := e.store.CreateRoom(ttl)
	require.NoError(t, err)
	return room
}

func TestJoinReturnsRoomView(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	result, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	assert.Equal(t, room.ID, result.Room.ID)
	assert.Empty(t, result.Room.OwnerSecret, "join must never leak the secret")
	assert.NotEmpty(t, result.Session.SessionID)
	assert.NotEmpty(t, result.Session.Nickname)
	assert.NotEmpty(t, result.Session.Color)
	assert.Empty(t, result.RecentMessages)
	assert.Empty(t, result.OwnerSessionID, "owner starts unset")

	binding, bound := env.coord.Binding("conn1")
	require.True(t, bound)
	assert.Equal(t, result.Session.SessionID, binding.SessionID)
	assert.False(t, binding.Privileged)
}

func TestJoinAnnouncesToOthersOnly(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	_, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)
	resultB, err := env.coord.Join("conn2", room.ID, "")
	require.NoError(t, err)

	joined := env.gateway.eventsOfType(models.EventUserJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, resultB.Session.Nickname, joined[1].Nickname)

	env.gateway.mu.Lock()
	defer env.gateway.mu.Unlock()
	assert.Equal(t, "conn2", env.gateway.broadcasts[len(env.gateway.broadcasts)-1].except,
		"user:joined must not echo back to the joiner")
}

func TestJoinFailures(t *testing.T) {
	env := newTestEnv(t, store.WithCapacity(1))
	room := env.createRoom(t, 12)

	_, err := env.coord.Join("conn1", "nosuchroom", "")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)

	_, err = env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	_, err = env.coord.Join("conn1", room.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyJoined, "one session per connection")

	_, err = env.coord.Join("conn2", room.ID, "")
	assert.ErrorIs(t, err, store.ErrRoomFull)
}

func TestJoinExpiredRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	env.clock.Advance(12*time.Hour + time.Second)

	_, err := env.coord.Join("conn1", room.ID, "")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestOwnerIdentificationOnJoin(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	resultA, err := env.coord.Join("connA", room.ID, "")
	require.NoError(t, err)
	assert.Empty(t, resultA.OwnerSessionID)

	resultB, err := env.coord.Join("connB", room.ID, room.OwnerSecret)
	require.NoError(t, err)
	assert.Equal(t, resultB.Session.SessionID, resultB.OwnerSessionID)
	assert.True(t, env.store.IsOwner(room.ID, resultB.Session.SessionID))

	identified := env.gateway.eventsOfType(models.EventOwnerIdentified)
	require.Len(t, identified, 1)
	assert.Equal(t, resultB.Session.SessionID, identified[0].OwnerSessionID)

	// A later secret-bearing join is privileged but does not displace the
	// owner-of-record.
	resultC, err := env.coord.Join("connC", room.ID, room.OwnerSecret)
	require.NoError(t, err)
	assert.Equal(t, resultB.Session.SessionID, resultC.OwnerSessionID)

	bindingC, _ := env.coord.Binding("connC")
	assert.True(t, bindingC.Privileged)
	assert.Len(t, env.gateway.eventsOfType(models.EventOwnerIdentified), 1)
}

func TestJoinWithWrongSecretIsNotPrivileged(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	result, err := env.coord.Join("conn1", room.ID, "wrong-secret")
	require.NoError(t, err, "a wrong secret joins as a normal participant")

	binding, _ := env.coord.Binding("conn1")
	assert.False(t, binding.Privileged)
	assert.False(t, env.store.IsOwner(room.ID, result.Session.SessionID))
}

func TestSendMessageBroadcastsToEveryone(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	result, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	warnings, err := env.coord.SendMessage("conn1", "hello <b>world</b>")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	messages := env.gateway.eventsOfType(models.EventMessageNew)
	require.Len(t, messages, 1)
	msg := messages[0].Message
	require.NotNil(t, msg)
	assert.Equal(t, result.Session.SessionID, msg.SessionID)
	assert.Equal(t, result.Session.Nickname, msg.Nickname)
	assert.Contains(t, msg.Content, "&lt;b&gt;")

	env.gateway.mu.Lock()
	defer env.gateway.mu.Unlock()
	last := env.gateway.broadcasts[len(env.gateway.broadcasts)-1]
	assert.Empty(t, last.except, "sender receives their own message through the room channel")
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	_, err := env.coord.SendMessage("conn1", "hi")
	assert.ErrorIs(t, err, ErrNotJoined)

	_, err = env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	_, err = env.coord.SendMessage("conn1", "   ")
	assert.ErrorIs(t, err, content.ErrMessageEmpty)

	_, err = env.coord.SendMessage("conn1", "javascript:alert(1)")
	assert.ErrorIs(t, err, content.ErrBlockedContent)

	assert.Empty(t, env.gateway.eventsOfType(models.EventMessageNew))
}

func TestSendMessageImageWarning(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)
	_, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	warnings, err := env.coord.SendMessage("conn1", "see https://example.com/cat.png")
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Len(t, env.gateway.eventsOfType(models.EventMessageNew), 1, "warnings never block sending")
}

func TestSendMessageToExpiredRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)
	_, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	env.clock.Advance(12*time.Hour + time.Second)

	_, err = env.coord.SendMessage("conn1", "anyone there?")
	assert.ErrorIs(t, err, ErrRoomExpired)

	notices := env.gateway.sentTo("conn1")
	require.Len(t, notices, 1)
	assert.Equal(t, models.EventRoomExpired, notices[0].Type)
}

func TestUpdateNickname(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	assert.ErrorIs(t, env.coord.UpdateNickname("conn1", "NewName"), ErrNotJoined)

	result, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	_, err = env.coord.SendMessage("conn1", "first")
	require.NoError(t, err)

	assert.ErrorIs(t, env.coord.UpdateNickname("conn1", "x"), content.ErrNicknameTooShort)
	assert.ErrorIs(t, env.coord.UpdateNickname("conn1", "bad name!"), content.ErrNicknameInvalid)

	require.NoError(t, env.coord.UpdateNickname("conn1", "  Fresh_Name42  "))

	binding, _ := env.coord.Binding("conn1")
	assert.Equal(t, "Fresh_Name42", binding.Nickname)

	updated := env.gateway.eventsOfType(models.EventUserUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, result.Session.SessionID, updated[0].SessionID)
	assert.Equal(t, "Fresh_Name42", updated[0].Nickname)

	// History keeps the old name; new messages carry the new one.
	history := env.store.RecentMessages(room.ID, 50)
	require.Len(t, history, 1)
	assert.Equal(t, result.Session.Nickname, history[0].Nickname)

	_, err = env.coord.SendMessage("conn1", "second")
	require.NoError(t, err)
	history = env.store.RecentMessages(room.ID, 50)
	assert.Equal(t, "Fresh_Name42", history[1].Nickname)
}

func TestEject(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	owner, err := env.coord.Join("connOwner", room.ID, room.OwnerSecret)
	require.NoError(t, err)
	target, err := env.coord.Join("connTarget", room.ID, "")
	require.NoError(t, err)

	err = env.coord.Eject("connOwner", target.Session.SessionID, "wrong-secret")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	err = env.coord.Eject("connOwner", owner.Session.SessionID, room.OwnerSecret)
	assert.ErrorIs(t, err, ErrCannotTargetSelf)

	err = env.coord.Eject("connOwner", "ghost-session", room.OwnerSecret)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	require.NoError(t, env.coord.Eject("connOwner", target.Session.SessionID, room.OwnerSecret))

	_, bound := env.coord.Binding("connTarget")
	assert.False(t, bound, "ejected connection loses its binding")
	assert.Equal(t, 1, env.store.ParticipantCount(room.ID))

	ejections := env.gateway.sentTo("connTarget")
	require.Len(t, ejections, 1)
	assert.Equal(t, models.EventUserEjected, ejections[0].Type)
	assert.Equal(t, "ejected by owner", ejections[0].Reason)
	assert.Equal(t, "ejected by owner", env.gateway.kicked["connTarget"])

	left := env.gateway.eventsOfType(models.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, target.Session.Nickname, left[0].Nickname)

	// Eject is not a ban: the same connection may join again.
	_, err = env.coord.Join("connTarget", room.ID, "")
	assert.NoError(t, err)
}

func TestBanEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	userA, err := env.coord.Join("connA", room.ID, "")
	require.NoError(t, err)
	userB, err := env.coord.Join("connB", room.ID, room.OwnerSecret)
	require.NoError(t, err)
	require.True(t, env.store.IsOwner(room.ID, userB.Session.SessionID))

	require.NoError(t, env.coord.Ban("connB", userA.Session.SessionID, room.OwnerSecret))

	_, bound := env.coord.Binding("connA")
	assert.False(t, bound)
	assert.Equal(t, "banned by owner", env.gateway.kicked["connA"])

	banned := env.gateway.sentTo("connA")
	require.Len(t, banned, 1)
	assert.Equal(t, models.EventUserBanned, banned[0].Type)

	// The banned session ID can never come back...
	err = env.store.AddSession(room.ID, &models.Session{
		SessionID: userA.Session.SessionID,
		RoomID:    room.ID,
		Nickname:  "comeback",
		Color:     "#1E88E5",
	})
	assert.ErrorIs(t, err, store.ErrBanned)

	// ...while a brand-new session joins normally.
	_, err = env.coord.Join("connC", room.ID, "")
	assert.NoError(t, err)
}

func TestPreemptiveBanThroughProtocol(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	_, err := env.coord.Join("connOwner", room.ID, room.OwnerSecret)
	require.NoError(t, err)

	require.NoError(t, env.coord.Ban("connOwner", "future-troll", room.OwnerSecret))
	assert.True(t, env.store.IsBanned(room.ID, "future-troll"))
	assert.Empty(t, env.gateway.eventsOfType(models.EventUserLeft),
		"no one left: the target was never connected")
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	owner, err := env.coord.Join("connA", room.ID, room.OwnerSecret)
	require.NoError(t, err)
	other, err := env.coord.Join("connB", room.ID, "")
	require.NoError(t, err)

	err = env.coord.TransferOwnership("connA", other.Session.SessionID, "wrong-secret")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	err = env.coord.TransferOwnership("connA", "ghost", room.OwnerSecret)
	assert.ErrorIs(t, err, store.ErrTargetNotInRoom)

	require.NoError(t, env.coord.TransferOwnership("connA", other.Session.SessionID, room.OwnerSecret))
	assert.True(t, env.store.IsOwner(room.ID, other.Session.SessionID))
	assert.False(t, env.store.IsOwner(room.ID, owner.Session.SessionID))

	transfers := env.gateway.eventsOfType(models.EventOwnerTransferred)
	require.Len(t, transfers, 1)
	assert.Equal(t, other.Session.SessionID, transfers[0].OwnerSessionID)
	assert.Equal(t, owner.Session.SessionID, transfers[0].PreviousOwnerSessionID)
}

func TestTransferOwnershipToSelfIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	owner, err := env.coord.Join("connA", room.ID, room.OwnerSecret)
	require.NoError(t, err)

	require.NoError(t, env.coord.TransferOwnership("connA", owner.Session.SessionID, room.OwnerSecret))
	assert.True(t, env.store.IsOwner(room.ID, owner.Session.SessionID))
	assert.Empty(t, env.gateway.eventsOfType(models.EventOwnerTransferred))
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	result, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)

	env.coord.Disconnect("conn1")

	_, bound := env.coord.Binding("conn1")
	assert.False(t, bound)
	assert.Zero(t, env.store.ParticipantCount(room.ID))

	left := env.gateway.eventsOfType(models.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, result.Session.Nickname, left[0].Nickname)

	// Disconnecting an unknown or already-gone connection is silent.
	env.coord.Disconnect("conn1")
	env.coord.Disconnect("never-connected")
	assert.Len(t, env.gateway.eventsOfType(models.EventUserLeft), 1)
}

func TestExpireRoomNotifiesAndUnbinds(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 12)

	_, err := env.coord.Join("conn1", room.ID, "")
	require.NoError(t, err)
	_, err = env.coord.Join("conn2", room.ID, "")
	require.NoError(t, err)

	env.clock.Advance(12*time.Hour + time.Second)
	require.Equal(t, []string{room.ID}, env.store.SweepExpired())

	env.coord.ExpireRoom(room.ID)

	require.Len(t, env.gateway.eventsOfType(models.EventRoomExpired), 1)

	_, bound := env.coord.Binding("conn1")
	assert.False(t, bound)
	_, bound = env.coord.Binding("conn2")
	assert.False(t, bound)

	env.gateway.mu.Lock()
	_, roomKnown := env.gateway.rooms[room.ID]
	env.gateway.mu.Unlock()
	assert.False(t, roomKnown, "the broadcast group is released")
}
