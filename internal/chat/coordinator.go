// Package chat implements the per-connection protocol: join, send,
// rename, moderation, disconnect. It owns the bindings between transport
// connections and room sessions; all room state itself lives in the store.
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"anonchat/internal/content"
	"anonchat/internal/identity"
	"anonchat/internal/models"
	"anonchat/internal/store"
	"anonchat/pkg/logger"
)

var (
	ErrAlreadyJoined    = errors.New("already in a room")
	ErrNotJoined        = errors.New("not in a room")
	ErrRoomExpired      = errors.New("room has expired")
	ErrCannotTargetSelf = errors.New("cannot target yourself")
	ErrTargetNotFound   = errors.New("target session not found")
	ErrUpdateFailed     = errors.New("failed to update nickname")
)

const (
	ejectReason = "ejected by owner"
	banReason   = "banned by owner"
)

// ConnectionBinding ties one transport connection to its room session.
// It is owned by the coordinator and keyed by an opaque connection ID,
// decoupled from the transport object's lifetime.
type ConnectionBinding struct {
	ConnID     string
	SessionID  string
	RoomID     string
	Nickname   string
	Color      string
	Privileged bool
}

// JoinResult is what a successful join returns to the caller.
type JoinResult struct {
	Room           *models.Room
	Session        *models.Session
	RecentMessages []*models.Message
	OwnerSessionID string
}

// Coordinator validates inbound protocol events against the store,
// applies them, and emits the resulting events through the gateway.
type Coordinator struct {
	store   *store.Store
	gateway Gateway

	mu        sync.RWMutex
	bindings  map[string]*ConnectionBinding
	bySession map[string]string // sessionID -> connID
}

func NewCoordinator(s *store.Store, gw Gateway) *Coordinator {
	return &Coordinator{
		store:     s,
		gateway:   gw,
		bindings:  make(map[string]*ConnectionBinding),
		bySession: make(map[string]string),
	}
}

// Binding returns a copy of the connection's binding, if any.
func (c *Coordinator) Binding(connID string) (ConnectionBinding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.bindings[connID]
	if !ok {
		return ConnectionBinding{}, false
	}
	return *b, true
}

// Join mints a session for the connection and enters it into the room.
// A correct owner secret marks the connection privileged and, if the room
// has no owner yet, makes this session the owner-of-record.
func (c *Coordinator) Join(connID, roomID, ownerSecret string) (*JoinResult, error) {
	if _, bound := c.Binding(connID); bound {
		return nil, ErrAlreadyJoined
	}

	room, err := c.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		SessionID: uuid.NewString(),
		RoomID:    roomID,
		Nickname:  identity.NewNickname(),
		Color:     identity.NewColor(),
		JoinedAt:  time.Now(),
	}

	if err := c.store.AddSession(roomID, session); err != nil {
		return nil, err
	}

	privileged := ownerSecret != "" && c.store.VerifyOwnerSecret(roomID, ownerSecret)

	binding := &ConnectionBinding{
		ConnID:     connID,
		SessionID:  session.SessionID,
		RoomID:     roomID,
		Nickname:   session.Nickname,
		Color:      session.Color,
		Privileged: privileged,
	}

	c.mu.Lock()
	if _, bound := c.bindings[connID]; bound {
		c.mu.Unlock()
		c.store.RemoveSession(roomID, session.SessionID)
		return nil, ErrAlreadyJoined
	}
	c.bindings[connID] = binding
	c.bySession[session.SessionID] = connID
	c.mu.Unlock()

	c.gateway.AddToRoom(roomID, connID)

	if privileged && c.store.ClaimOwner(roomID, session.SessionID) {
		c.gateway.Broadcast(roomID, &models.ServerEvent{
			Type:           models.EventOwnerIdentified,
			OwnerSessionID: session.SessionID,
		})
	}

	c.gateway.BroadcastExcept(roomID, connID, &models.ServerEvent{
		Type:     models.EventUserJoined,
		Nickname: session.Nickname,
		Color:    session.Color,
	})

	owner, _ := c.store.GetOwner(roomID)
	logger.Info("User %s joined room %s", session.Nickname, roomID)

	return &JoinResult{
		Room:           room,
		Session:        session,
		RecentMessages: c.store.RecentMessages(roomID, store.MaxRecentMessages),
		OwnerSessionID: owner,
	}, nil
}

// SendMessage validates and stores the content, then broadcasts it to the
// whole room including the sender, so the sender's own message arrives in
// the same order everyone else sees.
func (c *Coordinator) SendMessage(connID, rawContent string) ([]string, error) {
	binding, bound := c.Binding(connID)
	if !bound {
		return nil, ErrNotJoined
	}

	if _, err := c.store.GetRoom(binding.RoomID); err != nil {
		c.gateway.Send(connID, &models.ServerEvent{Type: models.EventRoomExpired})
		return nil, ErrRoomExpired
	}

	result, err := content.ValidateMessage(rawContent)
	if err != nil {
		return nil, err
	}

	msg, err := c.store.PostMessage(binding.RoomID, binding.SessionID, result.Sanitized)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.gateway.Send(connID, &models.ServerEvent{Type: models.EventRoomExpired})
			return nil, ErrRoomExpired
		}
		return nil, ErrNotJoined
	}

	c.gateway.Broadcast(binding.RoomID, &models.ServerEvent{
		Type:    models.EventMessageNew,
		Message: msg,
	})

	return result.Warnings, nil
}

// UpdateNickname renames the session. Already-sent messages keep the
// nickname they were sent under.
func (c *Coordinator) UpdateNickname(connID, rawNickname string) error {
	binding, bound := c.Binding(connID)
	if !bound {
		return ErrNotJoined
	}

	nickname, err := content.ValidateNickname(rawNickname)
	if err != nil {
		return err
	}

	if !c.store.UpdateNickname(binding.RoomID, binding.SessionID, nickname) {
		return ErrUpdateFailed
	}

	c.mu.Lock()
	if b, ok := c.bindings[connID]; ok {
		b.Nickname = nickname
	}
	c.mu.Unlock()

	c.gateway.BroadcastExcept(binding.RoomID, connID, &models.ServerEvent{
		Type:      models.EventUserUpdated,
		SessionID: binding.SessionID,
		Nickname:  nickname,
	})

	return nil
}

// Eject removes the target from the room without banning it; the target
// may rejoin. Requires the room's owner secret.
func (c *Coordinator) Eject(connID, targetSessionID, presentedSecret string) error {
	binding, err := c.authorizeModeration(connID, targetSessionID, presentedSecret)
	if err != nil {
		return err
	}

	removed := c.store.EjectSession(binding.RoomID, targetSessionID)
	if removed == nil {
		return ErrTargetNotFound
	}

	c.terminateTarget(binding.RoomID, targetSessionID, models.EventUserEjected, ejectReason)

	c.gateway.Broadcast(binding.RoomID, &models.ServerEvent{
		Type:     models.EventUserLeft,
		Nickname: removed.Nickname,
	})

	logger.Info("Session %s ejected from room %s", targetSessionID, binding.RoomID)
	return nil
}

// Ban permanently excludes the target session ID from the room and evicts
// it if connected. Banning an ID that never joined is accepted as a
// pre-emptive ban.
func (c *Coordinator) Ban(connID, targetSessionID, presentedSecret string) error {
	binding, err := c.authorizeModeration(connID, targetSessionID, presentedSecret)
	if err != nil {
		return err
	}

	evicted, ok := c.store.BanSession(binding.RoomID, targetSessionID)
	if !ok {
		return ErrRoomExpired
	}

	if evicted != nil {
		c.terminateTarget(binding.RoomID, targetSessionID, models.EventUserBanned, banReason)

		c.gateway.Broadcast(binding.RoomID, &models.ServerEvent{
			Type:     models.EventUserLeft,
			Nickname: evicted.Nickname,
		})
	}

	logger.Info("Session %s banned from room %s", targetSessionID, binding.RoomID)
	return nil
}

// TransferOwnership repoints the room's owner to the target session.
// Transferring to the current owner is accepted and does nothing.
func (c *Coordinator) TransferOwnership(connID, targetSessionID, presentedSecret string) error {
	binding, bound := c.Binding(connID)
	if !bound {
		return ErrNotJoined
	}

	previousOwner, _ := c.store.GetOwner(binding.RoomID)

	if err := c.store.TransferOwnership(binding.RoomID, targetSessionID, presentedSecret); err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			logger.Error("Moderation auth failure on room %s from conn %s", binding.RoomID, connID)
		}
		return err
	}

	if previousOwner == targetSessionID {
		return nil
	}

	c.gateway.Broadcast(binding.RoomID, &models.ServerEvent{
		Type:                   models.EventOwnerTransferred,
		OwnerSessionID:         targetSessionID,
		PreviousOwnerSessionID: previousOwner,
	})

	return nil
}

// Disconnect tears down the connection's binding, if any. It always
// succeeds; there is no caller waiting for a response.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	binding, bound := c.bindings[connID]
	if bound {
		delete(c.bindings, connID)
		delete(c.bySession, binding.SessionID)
	}
	c.mu.Unlock()

	if !bound {
		return
	}

	removed := c.store.RemoveSession(binding.RoomID, binding.SessionID)
	c.gateway.RemoveFromRoom(binding.RoomID, connID)

	if removed != nil {
		c.gateway.Broadcast(binding.RoomID, &models.ServerEvent{
			Type:     models.EventUserLeft,
			Nickname: removed.Nickname,
		})
		logger.Info("User %s left room %s", removed.Nickname, binding.RoomID)
	}
}

// ExpireRoom notifies every connection still bound to the room that it is
// gone and releases their bindings. Called after the sweeper destroys a
// room.
func (c *Coordinator) ExpireRoom(roomID string) {
	c.gateway.Broadcast(roomID, &models.ServerEvent{Type: models.EventRoomExpired})

	c.mu.Lock()
	for connID, b := range c.bindings {
		if b.RoomID == roomID {
			delete(c.bindings, connID)
			delete(c.bySession, b.SessionID)
		}
	}
	c.mu.Unlock()

	c.gateway.CloseRoom(roomID)
}

// authorizeModeration runs the checks shared by eject and ban: the caller
// must be bound, present the room's owner secret, and not target itself.
func (c *Coordinator) authorizeModeration(connID, targetSessionID, presentedSecret string) (ConnectionBinding, error) {
	binding, bound := c.Binding(connID)
	if !bound {
		return ConnectionBinding{}, ErrNotJoined
	}

	if !c.store.VerifyOwnerSecret(binding.RoomID, presentedSecret) {
		logger.Error("Moderation auth failure on room %s from conn %s", binding.RoomID, connID)
		return ConnectionBinding{}, store.ErrUnauthorized
	}

	if targetSessionID == binding.SessionID {
		return ConnectionBinding{}, ErrCannotTargetSelf
	}

	return binding, nil
}

// terminateTarget notifies the target's connection (if it has one) with
// the reason, then forces the transport to drop it.
func (c *Coordinator) terminateTarget(roomID, targetSessionID string, event models.EventType, reason string) {
	c.mu.Lock()
	targetConn, ok := c.bySession[targetSessionID]
	if ok {
		delete(c.bindings, targetConn)
		delete(c.bySession, targetSessionID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	c.gateway.RemoveFromRoom(roomID, targetConn)
	c.gateway.Send(targetConn, &models.ServerEvent{Type: event, Reason: reason})
	c.gateway.Kick(targetConn, reason)
}
