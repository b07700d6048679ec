package chat

import (
	"context"
	"sync"

	xctx "golang.org/x/net/context"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/fanout"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/throttle"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/decode"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
)

// Server ties the gateway components together: it owns the frame dispatch
// table, the bus subscriptions, and the connection attach/detach lifecycle.
type Server struct {
	GatewayID string

	reg   *Registry
	rooms *Rooms
	relay *Relay
	gate  *AuthGate
	guard *throttle.Guard
	store storage.ChatStore
	bus   fanout.Bus
	pres  storage.Presence // nil disables the presence mirror

	roomSub fanout.Subscription

	mu       sync.Mutex
	userSubs map[string]fanout.Subscription // per-user subject, keyed by userID
}

func NewServer(gatewayID string, reg *Registry, rooms *Rooms, relay *Relay, gate *AuthGate, guard *throttle.Guard, store storage.ChatStore, bus fanout.Bus, pres storage.Presence) *Server {
	return &Server{
		GatewayID: gatewayID,
		reg:       reg,
		rooms:     rooms,
		relay:     relay,
		gate:      gate,
		guard:     guard,
		store:     store,
		bus:       bus,
		pres:      pres,
		userSubs:  make(map[string]fanout.Subscription),
	}
}

// Start wires the cross-instance room subscription. Every room subject funnels
// into Rooms.OnBusFrame, which drops frames this instance published itself.
func (s *Server) Start() error {
	sub, err := s.bus.Subscribe(fanout.RoomSubjectPrefix+">", func(_ xctx.Context, msg fanout.Message) error {
		s.rooms.OnBusFrame(msg)
		return nil
	})
	if err != nil {
		return errs.ErrInternal.WrapMsg("subscribe room fanout: %v", err)
	}
	s.roomSub = sub
	return nil
}

func (s *Server) Shutdown() {
	if s.roomSub != nil {
		_ = s.roomSub.Unsubscribe()
	}
	s.mu.Lock()
	for _, sub := range s.userSubs {
		_ = sub.Unsubscribe()
	}
	s.userSubs = make(map[string]fanout.Subscription)
	s.mu.Unlock()
	s.reg.CloseAll()
}

// Attach admits an authenticated connection. On the user's first connection it
// also marks presence and opens the user's private bus subject. The whole
// offline→online transition runs under s.mu, with the admission decided
// atomically inside the registry, so concurrent attaches/detaches of one user
// cannot interleave the presence and subscription updates.
func (s *Server) Attach(ctx context.Context, c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, first := s.reg.Add(c)
	if !ok {
		return errs.ErrConnLimit.WrapMsg("user %s at max connections", c.UserID)
	}
	if !first {
		return nil
	}
	if s.pres != nil {
		if err := s.pres.Online(ctx, c.UserID, s.GatewayID); err != nil {
			logger.Warnf("[server] presence online user=%s: %v", c.UserID, err)
		}
	}
	userID := c.UserID
	sub, err := s.bus.Subscribe(fanout.UserSubject(userID), func(_ xctx.Context, msg fanout.Message) error {
		s.deliverUser(userID, msg.Data)
		return nil
	})
	if err != nil {
		logger.Warnf("[server] user subject subscribe user=%s: %v", userID, err)
		return nil
	}
	s.userSubs[userID] = sub
	return nil
}

// Detach is the single disconnect path: room cleanup, registry removal, and
// on the user's last connection, presence teardown — the online→offline
// transition held under the same s.mu as Attach, so a reconnect racing a
// disconnect cannot have its fresh presence record torn down.
func (s *Server) Detach(ctx context.Context, c *Conn) {
	s.rooms.DropConn(ctx, c)
	c.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, wentOffline := s.reg.Remove(c.ID)
	if !wentOffline {
		return
	}
	if sub := s.userSubs[userID]; sub != nil {
		_ = sub.Unsubscribe()
	}
	delete(s.userSubs, userID)
	if s.pres != nil {
		if err := s.pres.Offline(ctx, userID); err != nil {
			logger.Warnf("[server] presence offline user=%s: %v", userID, err)
		}
	}
}

// deliverUser fans a bus frame out to every local connection of the user.
func (s *Server) deliverUser(userID string, payload []byte) {
	for _, c := range s.reg.UserConns(userID) {
		c.Enqueue(payload)
	}
}

// Dispatch routes an inbound frame. A handler error never tears the
// connection down; the client gets a sanitized error event instead.
func (s *Server) Dispatch(ctx context.Context, c *Conn, f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[server] panic in %s handler conn=%s: %v", f.Event, c.ID, r)
			s.sendErr(c, errs.ErrInternal)
		}
	}()

	if err := s.handle(ctx, c, f); err != nil {
		ce := errs.AsCode(err)
		if ce.Code == errs.CodeInternal {
			// the raw error may carry infrastructure detail; keep it in logs only
			logger.Errorf("[server] %s conn=%s user=%s: %v", f.Event, c.ID, c.UserID, err)
		} else {
			logger.Debugf("[server] %s rejected conn=%s user=%s: %v", f.Event, c.ID, c.UserID, err)
		}
		s.sendErr(c, ce)
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, f *Frame) error {
	switch f.Event {
	case EvtAuth:
		// The handshake already ran. Clients that authenticated through the
		// upgrade request may still send an auth frame; re-ack when the token
		// names the same user, reject an identity switch.
		p, err := decode.DecodeMap[AuthPayload](f.Data)
		if err != nil {
			return errs.ErrValidation.WrapMsg("auth payload: %v", err)
		}
		subject, err := s.gate.Verifier.Verify(p.Token)
		if err != nil {
			return errs.ErrAuth.WrapMsg("verify token: %v", err)
		}
		if subject != c.UserID {
			return errs.ErrValidation.WithDetail("already authenticated")
		}
		c.Enqueue(BuildConnected(&storage.User{ID: c.UserID, Name: c.UserName}))
		return nil

	case EvtJoin:
		p, err := decode.DecodeMap[JoinPayload](f.Data)
		if err != nil {
			return errs.ErrValidation.WrapMsg("join payload: %v", err)
		}
		return s.rooms.Join(ctx, c, p.RoomID)

	case EvtLeave:
		p, err := decode.DecodeMap[LeavePayload](f.Data)
		if err != nil {
			return errs.ErrValidation.WrapMsg("leave payload: %v", err)
		}
		return s.rooms.Leave(ctx, c, p.RoomID)

	case EvtSend:
		p, err := decode.DecodeMap[SendPayload](f.Data)
		if err != nil {
			return errs.ErrValidation.WrapMsg("send payload: %v", err)
		}
		return s.relay.HandleSend(ctx, c, p)

	case EvtTyping:
		p, err := decode.DecodeMap[TypingPayload](f.Data)
		if err != nil {
			return errs.ErrValidation.WrapMsg("typing payload: %v", err)
		}
		return s.handleTyping(ctx, c, p)

	case EvtGetRooms:
		rooms, err := s.store.ListRooms(ctx)
		if err != nil {
			return errs.ErrPersistence.WrapMsg("list rooms: %v", err)
		}
		c.Enqueue(BuildRooms(rooms))
		return nil

	default:
		return errs.ErrValidation.WrapMsg("unknown event %q", f.Event)
	}
}

// handleTyping relays a typing indicator to the rest of the room. Typing is
// ephemeral: never persisted, never archived.
func (s *Server) handleTyping(ctx context.Context, c *Conn, p *TypingPayload) error {
	roomID, ok := s.rooms.Membership(c.ID)
	if !ok || roomID != p.RoomID {
		return errs.ErrValidation.WithDetail("typing outside joined room")
	}
	if err := s.guard.Allow(ctx, c.UserID, throttle.ClassTyping); err != nil {
		return err
	}
	s.rooms.Broadcast(ctx, p.RoomID,
		BuildUserTyping(c.UserID, c.UserName, p.RoomID, p.Status, s.reg.Clock()), c.ID)
	return nil
}

func (s *Server) sendErr(c *Conn, ce *errs.CodeError) {
	c.Enqueue(BuildError(ce.Code, ce.Msg))
}
