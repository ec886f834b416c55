// Package store holds the authoritative in-memory model of rooms,
// sessions, messages and bans. All state lives in this process; a restart
// loses every room.
package store

import (
	"crypto/subtle"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"anonchat/internal/identity"
	"anonchat/internal/models"
)

const (
	// DefaultCapacity is the participant ceiling per room.
	DefaultCapacity = 300

	// MaxRecentMessages is the retention limit of the per-room message
	// ring. The backing slice is trimmed once it exceeds twice this, so
	// the trim cost is amortized across inserts.
	MaxRecentMessages = 50
)

var (
	ErrInvalidTTL      = errors.New("invalid TTL: must be 12, 24, or 72 hours")
	ErrRoomNotFound    = errors.New("room not found or has expired")
	ErrRoomFull        = errors.New("room is full")
	ErrBanned          = errors.New("you are banned from this room")
	ErrNotInRoom       = errors.New("session is not in the room")
	ErrUnauthorized    = errors.New("invalid owner secret")
	ErrTargetNotInRoom = errors.New("target session is not in the room")
)

// room bundles everything owned by one room ID. Its mutex serializes all
// mutations to the room; the registry lock is never held while a room
// lock is held for longer than a map lookup.
type room struct {
	mu       sync.Mutex
	info     models.Room
	sessions map[string]*models.Session
	messages []*models.Message
	bans     map[string]struct{}
	ownerID  string
}

// Store is the room registry. One instance is constructed at process
// start and injected into everything that needs it.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	capacity int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the per-room participant ceiling.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithClock overrides the time source. Expiry is evaluated against this
// clock both on lookups and during sweeps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		rooms:    make(map[string]*room),
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live reports whether the room is still within its TTL. The same
// predicate backs lazy lookups and the periodic sweep.
func (r *room) live(now time.Time) bool {
	return !now.After(r.info.ExpiresAt)
}

// liveRoom returns the room only if it exists and has not expired.
// ExpiresAt is immutable after creation, so no room lock is needed here.
func (s *Store) liveRoom(roomID string) *room {
	s.mu.RLock()
	r := s.rooms[roomID]
	s.mu.RUnlock()

	if r == nil || !r.live(s.now()) {
		return nil
	}
	return r
}

// CreateRoom allocates a fresh room with the given TTL. The returned
// value is the only copy that ever carries the owner secret.
func (s *Store) CreateRoom(ttlHours int) (*models.Room, error) {
	if !slices.Contains(models.TTLOptions, ttlHours) {
		return nil, ErrInvalidTTL
	}

	now := s.now()
	info := models.Room{
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(ttlHours) * time.Hour),
		TTLHours:    ttlHours,
		Capacity:    s.capacity,
		OwnerSecret: identity.NewOwnerSecret(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-roll on ID collision. Dead-but-unswept rooms count as taken so
	// a collision can never resurrect another room's ID early.
	id := identity.NewRoomID()
	for s.rooms[id] != nil {
		id = identity.NewRoomID()
	}
	info.ID = id

	s.rooms[id] = &room{
		info:     info,
		sessions: make(map[string]*models.Session),
		bans:     make(map[string]struct{}),
	}

	created := info
	return &created, nil
}

// GetRoom returns the public view of a live room. A room past its TTL is
// treated as already gone even if the sweeper has not run yet.
func (s *Store) GetRoom(roomID string) (*models.Room, error) {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}

	public := r.info
	public.OwnerSecret = ""
	return &public, nil
}

func (s *Store) ParticipantCount(roomID string) int {
	r := s.liveRoom(roomID)
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (s *Store) IsFull(roomID string) bool {
	r := s.liveRoom(roomID)
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) >= r.info.Capacity
}

// AddSession inserts the session into the room's active set. The ban and
// capacity checks happen under the room lock together with the insert, so
// a concurrent eject or join cannot slip a room past its capacity.
func (s *Store) AddSession(roomID string, session *models.Session) error {
	r := s.liveRoom(roomID)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, banned := r.bans[session.SessionID]; banned {
		return ErrBanned
	}
	if len(r.sessions) >= r.info.Capacity {
		return ErrRoomFull
	}

	r.sessions[session.SessionID] = session
	return nil
}

// RemoveSession removes and returns the session, or nil if it was not
// present. Removing an absent session is not an error.
func (s *Store) RemoveSession(roomID, sessionID string) *models.Session {
	s.mu.RLock()
	r := s.rooms[roomID]
	s.mu.RUnlock()
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return session
}

// GetSession returns the active session, or nil.
func (s *Store) GetSession(roomID, sessionID string) *models.Session {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok {
		copied := *session
		return &copied
	}
	return nil
}

// UpdateNickname changes the session's display name. Content validation
// happens upstream; the store accepts what it is given.
func (s *Store) UpdateNickname(roomID, sessionID, nickname string) bool {
	r := s.liveRoom(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	session.Nickname = nickname
	return true
}

// PostMessage appends a message from an active session, snapshotting the
// sender's current nickname and color under the room lock. A sender whose
// session was just evicted or banned cannot append: the membership check
// and the append are a single atomic step.
func (s *Store) PostMessage(roomID, sessionID, sanitized string) (*models.Message, error) {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotInRoom
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SessionID: sessionID,
		Nickname:  sender.Nickname,
		Color:     sender.Color,
		Content:   sanitized,
		Timestamp: s.now(),
	}

	r.messages = append(r.messages, msg)
	if len(r.messages) > MaxRecentMessages*2 {
		trimmed := make([]*models.Message, MaxRecentMessages)
		copy(trimmed, r.messages[len(r.messages)-MaxRecentMessages:])
		r.messages = trimmed
	}

	return msg, nil
}

// RecentMessages returns up to limit of the newest messages, oldest
// first. A limit <= 0 means the retention default.
func (s *Store) RecentMessages(roomID string, limit int) []*models.Message {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil
	}
	if limit <= 0 || limit > MaxRecentMessages {
		limit = MaxRecentMessages
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := len(r.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]*models.Message, len(r.messages)-start)
	copy(out, r.messages[start:])
	return out
}

// BanSession adds the session ID to the room's ban set and evicts any
// active session with that ID, as one atomic step. Banning an ID that was
// never a participant is valid (pre-emptive ban). Returns the evicted
// session if one was connected; ok is false only if the room is gone.
func (s *Store) BanSession(roomID, sessionID string) (*models.Session, bool) {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bans[sessionID] = struct{}{}
	evicted := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	if r.ownerID == sessionID {
		r.ownerID = ""
	}
	return evicted, true
}

// EjectSession removes the active session without banning it. Ejecting a
// non-participant is a no-op, not an error.
func (s *Store) EjectSession(roomID, sessionID string) *models.Session {
	r := s.liveRoom(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return session
}

// IsBanned reports whether the session ID is in the room's ban set.
func (s *Store) IsBanned(roomID, sessionID string) bool {
	r := s.liveRoom(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, banned := r.bans[sessionID]
	return banned
}

// VerifyOwnerSecret checks the presented secret against the room's.
func (s *Store) VerifyOwnerSecret(roomID, secret string) bool {
	r := s.liveRoom(roomID)
	if r == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.info.OwnerSecret), []byte(secret)) == 1
}

// SetOwner unconditionally repoints the room's owner.
func (s *Store) SetOwner(roomID, sessionID string) {
	r := s.liveRoom(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownerID = sessionID
}

// ClaimOwner sets the owner only if the room has none yet. Two
// secret-bearing joins racing each other cannot both become owner.
func (s *Store) ClaimOwner(roomID, sessionID string) bool {
	r := s.liveRoom(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ownerID != "" {
		return false
	}
	r.ownerID = sessionID
	return true
}

// GetOwner returns the owner-of-record session ID, or ok=false if the
// room has no owner yet.
func (s *Store) GetOwner(roomID string) (string, bool) {
	r := s.liveRoom(roomID)
	if r == nil {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerID, r.ownerID != ""
}

func (s *Store) IsOwner(roomID, sessionID string) bool {
	owner, ok := s.GetOwner(roomID)
	return ok && owner == sessionID
}

// TransferOwnership repoints the owner to another active session after
// verifying the presented secret. Transferring to the current owner is a
// harmless no-op.
func (s *Store) TransferOwnership(roomID, newOwnerSessionID, presentedSecret string) error {
	r := s.liveRoom(roomID)
	if r == nil {
		return ErrRoomNotFound
	}
	if subtle.ConstantTimeCompare([]byte(r.info.OwnerSecret), []byte(presentedSecret)) != 1 {
		return ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[newOwnerSessionID]; !ok {
		return ErrTargetNotInRoom
	}
	r.ownerID = newOwnerSessionID
	return nil
}

// DestroyRoom deletes the room and all its sessions, messages, bans and
// owner pointer together. Reports whether the room existed.
func (s *Store) DestroyRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// SweepExpired destroys every room past its TTL and returns their IDs.
func (s *Store) SweepExpired() []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, r := range s.rooms {
		if !r.live(now) {
			expired = append(expired, id)
			delete(s.rooms, id)
		}
	}
	return expired
}
