package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/fanout"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/throttle"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"

	"sync"
)

// busEnvelope wraps a client frame for cross-instance fanout. Origin lets an
// instance skip its own publishes (local delivery already happened
// synchronously); Except suppresses delivery to one connection (the joiner).
type busEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room,omitempty"`
	User   string          `json:"user,omitempty"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Rooms owns room membership for this gateway instance. A connection belongs
// to at most one room; joining a new room leaves the previous one first.
type Rooms struct {
	mu     sync.RWMutex
	byConn map[string]string            // conn_id -> room_id
	byRoom map[string]map[string]*Conn  // room_id -> conn_id -> conn

	reg   *Registry
	store storage.ChatStore
	bus   fanout.Bus
	guard *throttle.Guard
	gwID  string
}

func NewRooms(reg *Registry, store storage.ChatStore, bus fanout.Bus, guard *throttle.Guard, gwID string) *Rooms {
	return &Rooms{
		byConn: make(map[string]string),
		byRoom: make(map[string]map[string]*Conn),
		reg:    reg,
		store:  store,
		bus:    bus,
		guard:  guard,
		gwID:   gwID,
	}
}

const maxRoomIDLen = 128

// validateRoomID restricts room ids to [A-Za-z0-9_-]. Room ids become tokens
// of bus subjects, so dots, whitespace and the NATS wildcards '*' and '>'
// must never reach the wire.
func validateRoomID(roomID string) error {
	if roomID == "" {
		return errs.ErrValidation.WithDetail("empty roomId")
	}
	if len(roomID) > maxRoomIDLen {
		return errs.ErrValidation.WithDetail("roomId too long")
	}
	for _, ch := range roomID {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_', ch == '-':
		default:
			return errs.ErrValidation.WrapMsg("roomId %q: only letters, digits, '_' and '-' allowed", roomID)
		}
	}
	return nil
}

// Join ensures the room exists (lazy create, name=roomID), enforces the
// single-active-room invariant by leaving any previous room, then broadcasts
// userJoined to the room excluding the joining connection.
func (r *Rooms) Join(ctx context.Context, c *Conn, roomID string) error {
	if err := validateRoomID(roomID); err != nil {
		return err
	}

	if _, err := r.store.GetRoom(ctx, roomID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return errs.ErrPersistence.WrapMsg("get room %s: %v", roomID, err)
		}
		// lazy creation is the only room-create path on the socket
		if err := r.guard.Allow(ctx, c.UserID, throttle.ClassRoomCreate); err != nil {
			return err
		}
		if _, err := r.store.CreateRoom(ctx, roomID, roomID); err != nil {
			return errs.ErrPersistence.WrapMsg("create room %s: %v", roomID, err)
		}
	}

	now := r.reg.Clock()

	r.mu.Lock()
	prev := r.byConn[c.ID]
	if prev == roomID {
		r.mu.Unlock()
		return nil
	}
	if prev != "" {
		r.removeLocked(c, prev)
	}
	mm := r.byRoom[roomID]
	if mm == nil {
		mm = make(map[string]*Conn)
		r.byRoom[roomID] = mm
	}
	mm[c.ID] = c
	r.byConn[c.ID] = roomID
	r.mu.Unlock()

	if prev != "" {
		r.Broadcast(ctx, prev, BuildRoomEvent(EvtUserLeft, c.UserID, c.UserName, prev, now), "")
	}
	r.Broadcast(ctx, roomID, BuildRoomEvent(EvtUserJoined, c.UserID, c.UserName, roomID, now), c.ID)
	return nil
}

// Leave removes membership and tells the remaining members.
func (r *Rooms) Leave(ctx context.Context, c *Conn, roomID string) error {
	if roomID == "" {
		return errs.ErrValidation.WithDetail("leave: empty roomId")
	}

	r.mu.Lock()
	if r.byConn[c.ID] != roomID {
		r.mu.Unlock()
		return errs.ErrValidation.WrapMsg("leave: not a member of %s", roomID)
	}
	r.removeLocked(c, roomID)
	r.mu.Unlock()

	r.Broadcast(ctx, roomID, BuildRoomEvent(EvtUserLeft, c.UserID, c.UserName, roomID, r.reg.Clock()), "")
	return nil
}

// DropConn is disconnect cleanup: silently forget membership and notify the
// room the user left.
func (r *Rooms) DropConn(ctx context.Context, c *Conn) {
	r.mu.Lock()
	roomID := r.byConn[c.ID]
	if roomID != "" {
		r.removeLocked(c, roomID)
	}
	r.mu.Unlock()

	if roomID != "" {
		r.Broadcast(ctx, roomID, BuildRoomEvent(EvtUserLeft, c.UserID, c.UserName, roomID, r.reg.Clock()), "")
	}
}

// Membership returns the (at most one) room this connection belongs to.
func (r *Rooms) Membership(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byConn[connID]
	return roomID, ok && roomID != ""
}

// Members lists the local connections in a room.
func (r *Rooms) Members(roomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byRoom[roomID]
	out := make([]*Conn, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

// must hold r.mu
func (r *Rooms) removeLocked(c *Conn, roomID string) {
	if mm := r.byRoom[roomID]; mm != nil {
		delete(mm, c.ID)
		if len(mm) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	delete(r.byConn, c.ID)
}

// Broadcast delivers a frame to the room's local members and publishes it for
// the other gateway instances. exceptConnID suppresses one local connection.
func (r *Rooms) Broadcast(ctx context.Context, roomID string, payload []byte, exceptConnID string) {
	if len(payload) == 0 {
		return
	}
	r.deliverLocal(roomID, payload, exceptConnID)

	env, err := json.Marshal(busEnvelope{
		Origin: r.gwID,
		Room:   roomID,
		Except: exceptConnID,
		Frame:  payload,
	})
	if err != nil {
		logger.Errorf("[rooms] marshal envelope room=%s: %v", roomID, err)
		return
	}
	if err := r.bus.Publish(ctx, fanout.RoomSubject(roomID), env); err != nil {
		logger.Warnf("[rooms] bus publish room=%s: %v", roomID, err)
	}
}

func (r *Rooms) deliverLocal(roomID string, payload []byte, exceptConnID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.byRoom[roomID] {
		if id == exceptConnID {
			continue
		}
		c.Enqueue(payload)
	}
}

// OnBusFrame handles room traffic arriving from other instances.
func (r *Rooms) OnBusFrame(msg fanout.Message) {
	var env busEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		logger.Warnf("[rooms] bad bus envelope subject=%s: %v", msg.Subject, err)
		return
	}
	if env.Origin == r.gwID {
		return
	}
	r.deliverLocal(env.Room, env.Frame, env.Except)
}
