package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/archive"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/llm"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/throttle"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/ids"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/safe"
)

// RelayConf bounds message intake. Zero values fall back to defaults.
type RelayConf struct {
	History   int // messages handed to the generator
	MaxRunes  int // hard validation limit
	LongRunes int // above this the long-message throttle class applies
}

func (c *RelayConf) norm() {
	if c.History <= 0 {
		c.History = 20
	}
	if c.MaxRunes <= 0 {
		c.MaxRunes = 4000
	}
	if c.LongRunes <= 0 {
		c.LongRunes = 1000
	}
}

// Relay orchestrates an inbound send:
// Validate -> Persist(user msg) -> Broadcast -> StreamStart ->
// GenerateAndRelay -> StreamEnd (+PersistAssistant | Error).
//
// The user message is persisted before it is broadcast, so durable history can
// never lag what room members saw live.
type Relay struct {
	rooms *Rooms
	reg   *Registry
	store storage.ChatStore
	guard *throttle.Guard
	gen   llm.Generator
	arch  *archive.Producer // nil disables archiving
	conf  RelayConf
}

func NewRelay(rooms *Rooms, reg *Registry, store storage.ChatStore, guard *throttle.Guard, gen llm.Generator, arch *archive.Producer, conf RelayConf) *Relay {
	conf.norm()
	return &Relay{
		rooms: rooms,
		reg:   reg,
		store: store,
		guard: guard,
		gen:   gen,
		arch:  arch,
		conf:  conf,
	}
}

// HandleSend runs the relay state machine for one inbound message.
func (rl *Relay) HandleSend(ctx context.Context, c *Conn, p *SendPayload) error {
	// Validate
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return errs.ErrValidation.WithDetail("empty message")
	}
	if err := validateRoomID(p.RoomID); err != nil {
		return err
	}
	runes := utf8.RuneCountInString(text)
	if runes > rl.conf.MaxRunes {
		return errs.ErrValidation.WrapMsg("message too long (%d runes)", runes)
	}

	if err := rl.guard.Allow(ctx, c.UserID, throttle.ClassMessageSend); err != nil {
		return err
	}
	if err := rl.guard.Allow(ctx, c.UserID, throttle.ClassSpamGuard); err != nil {
		return err
	}
	if runes > rl.conf.LongRunes {
		if err := rl.guard.Allow(ctx, c.UserID, throttle.ClassLongMessage); err != nil {
			return err
		}
	}

	// Persist(user msg), creating the room first if it does not exist
	if _, err := rl.store.GetRoom(ctx, p.RoomID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return errs.ErrPersistence.WrapMsg("get room %s: %v", p.RoomID, err)
		}
		if _, err := rl.store.CreateRoom(ctx, p.RoomID, p.RoomID); err != nil {
			return errs.ErrPersistence.WrapMsg("create room %s: %v", p.RoomID, err)
		}
	}
	saved, err := rl.store.AppendMessage(ctx, &storage.Message{
		RoomID:  p.RoomID,
		UserID:  c.UserID,
		Role:    storage.RoleUser,
		Content: text,
	})
	if err != nil {
		return errs.ErrPersistence.WrapMsg("append message room=%s: %v", p.RoomID, err)
	}
	rl.arch.Archive(saved)

	// Broadcast to all room members, sender included (multi-device consistency)
	frame := BuildMessage(saved, c.UserName)
	rl.rooms.Broadcast(ctx, p.RoomID, frame, "")
	if roomID, ok := rl.rooms.Membership(c.ID); !ok || roomID != p.RoomID {
		// sender posted into a room it never joined on this connection
		c.Enqueue(frame)
	}

	// StreamStart, then relay the generation in its own goroutine. The stream
	// belongs to the room, not the initiating connection: a disconnect does
	// not cancel it and the assistant message is persisted regardless.
	streamID := ids.GenerateString()
	rl.rooms.Broadcast(ctx, p.RoomID, BuildStream(StreamStart, p.RoomID, streamID, "", "", rl.reg.Clock()), "")

	safe.SafeGo(func() {
		rl.runStream(p.RoomID, streamID)
	})
	return nil
}

// runStream consumes the generator's ordered event channel in a single
// goroutine; tokens reach clients in exactly the order they were produced.
func (rl *Relay) runStream(roomID, streamID string) {
	ctx := context.Background()

	history, err := rl.store.RecentMessages(ctx, roomID, rl.conf.History)
	if err != nil {
		logger.Errorf("[relay] history room=%s: %v", roomID, err)
		rl.failStream(ctx, roomID, streamID, errs.ErrPersistence)
		return
	}

	ch, err := rl.gen.Stream(ctx, llm.BuildContext(history, rl.conf.History))
	if err != nil {
		logger.Errorf("[relay] stream start room=%s: %v", roomID, err)
		rl.failStream(ctx, roomID, streamID, errs.ErrGeneration)
		return
	}

	for ev := range ch {
		switch {
		case ev.Err != nil:
			logger.Errorf("[relay] generation room=%s stream=%s: %v", roomID, streamID, ev.Err)
			rl.failStream(ctx, roomID, streamID, errs.ErrGeneration)
			return

		case ev.Done:
			saved, perr := rl.store.AppendMessage(ctx, &storage.Message{
				RoomID:  roomID,
				Role:    storage.RoleAssistant,
				Content: ev.Full,
			})
			if perr != nil {
				logger.Errorf("[relay] persist assistant room=%s: %v", roomID, perr)
				rl.failStream(ctx, roomID, streamID, errs.ErrPersistence)
				return
			}
			rl.arch.Archive(saved)
			rl.rooms.Broadcast(ctx, roomID,
				BuildStream(StreamEnd, roomID, streamID, "", saved.ID, rl.reg.Clock()), "")
			return

		default:
			rl.rooms.Broadcast(ctx, roomID,
				BuildStream(StreamToken, roomID, streamID, ev.Token, "", rl.reg.Clock()), "")
		}
	}

	// channel closed without a terminal event; still release client UIs
	rl.rooms.Broadcast(ctx, roomID,
		BuildStream(StreamEnd, roomID, streamID, "", "", rl.reg.Clock()), "")
}

// failStream emits a sanitized error event and always a stream-end, so client
// UI states relying on stream-end are never left hanging.
func (rl *Relay) failStream(ctx context.Context, roomID, streamID string, ce *errs.CodeError) {
	rl.rooms.Broadcast(ctx, roomID, BuildError(ce.Code, ce.Msg), "")
	rl.rooms.Broadcast(ctx, roomID,
		BuildStream(StreamEnd, roomID, streamID, "", "", rl.reg.Clock()), "")
}
