package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
)

// Event frame wire format: {"event": "...", "data": {...}} as a text message.

// client -> server
const (
	EvtAuth     = "auth"
	EvtJoin     = "join"
	EvtLeave    = "leave"
	EvtSend     = "send"
	EvtTyping   = "typing"
	EvtGetRooms = "getRooms"
)

// server -> client
const (
	EvtConnected  = "connected"
	EvtMessage    = "message"
	EvtUserJoined = "userJoined"
	EvtUserLeft   = "userLeft"
	EvtUserTyping = "userTyping"
	EvtStream     = "stream"
	EvtError      = "error"
	EvtRooms      = "rooms"
)

type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return f, nil
}

// Encode marshals an outbound frame; marshal failures on our own structs are
// programming errors, logged and swallowed (Enqueue skips empty payloads).
func Encode(event string, data any) []byte {
	b, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data})
	if err != nil {
		logger.Errorf("[frames] marshal %s: %v", event, err)
		return nil
	}
	return b
}

// ---- inbound payloads ----

type AuthPayload struct {
	Token string `json:"token"`
}

type JoinPayload struct {
	RoomID string `json:"roomId"`
}

type LeavePayload struct {
	RoomID string `json:"roomId"`
}

type SendPayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type TypingPayload struct {
	RoomID string `json:"roomId"`
	Status bool   `json:"status"`
}

// ---- outbound payloads ----

type ConnectedUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ConnectedEvent struct {
	User ConnectedUser `json:"user"`
}

type MessageEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

// RoomEvent backs both userJoined and userLeft.
type RoomEvent struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

type TypingEvent struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	RoomID    string `json:"roomId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

const (
	StreamStart = "start"
	StreamToken = "token"
	StreamEnd   = "end"
)

type StreamEvent struct {
	Type      string `json:"type"` // start|token|end
	RoomID    string `json:"roomId"`
	StreamID  string `json:"streamId"`
	Token     string `json:"token,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type RoomInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

type RoomsEvent struct {
	Rooms []RoomInfo `json:"rooms"`
}

// ---- builders ----

func BuildConnected(u *storage.User) []byte {
	return Encode(EvtConnected, ConnectedEvent{User: ConnectedUser{ID: u.ID, Name: u.Name}})
}

func BuildMessage(m *storage.Message, userName string) []byte {
	return Encode(EvtMessage, MessageEvent{
		ID:        m.ID,
		UserID:    m.UserID,
		UserName:  userName,
		Role:      m.Role,
		Text:      m.Content,
		RoomID:    m.RoomID,
		Timestamp: m.CreatedAt.UnixMilli(),
	})
}

func BuildRoomEvent(event, userID, userName, roomID string, ts time.Time) []byte {
	return Encode(event, RoomEvent{
		UserID:    userID,
		UserName:  userName,
		RoomID:    roomID,
		Timestamp: ts.UnixMilli(),
	})
}

func BuildUserTyping(userID, userName, roomID string, isTyping bool, ts time.Time) []byte {
	return Encode(EvtUserTyping, TypingEvent{
		UserID:    userID,
		UserName:  userName,
		RoomID:    roomID,
		IsTyping:  isTyping,
		Timestamp: ts.UnixMilli(),
	})
}

func BuildStream(typ, roomID, streamID, token, messageID string, ts time.Time) []byte {
	return Encode(EvtStream, StreamEvent{
		Type:      typ,
		RoomID:    roomID,
		StreamID:  streamID,
		Token:     token,
		MessageID: messageID,
		Timestamp: ts.UnixMilli(),
	})
}

func BuildError(code int, message string) []byte {
	return Encode(EvtError, ErrorEvent{Code: code, Message: message})
}

func BuildRooms(rooms []storage.Room) []byte {
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UnixMilli()})
	}
	return Encode(EvtRooms, RoomsEvent{Rooms: out})
}
