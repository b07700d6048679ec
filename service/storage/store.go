package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups for absent rooms/users.
var ErrNotFound = errors.New("not found")

// Message roles. A nil/empty UserID together with RoleSystem marks
// system-origin messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Room is a named message-ordering scope. Created lazily on first join.
type Room struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Message is immutable once created; within a room creation order is the only
// meaningful order.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"room_id" json:"roomId"`
	UserID    string    `bson:"user_id,omitempty" json:"userId,omitempty"`
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// User is the minimal identity the gateway resolves a token subject to.
type User struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// ChatStore is the durable persistence boundary of the relay.
type ChatStore interface {
	// GetRoom returns ErrNotFound for absent rooms.
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	// CreateRoom is create-if-absent; racing creates must converge on one room.
	CreateRoom(ctx context.Context, roomID, name string) (*Room, error)
	// AppendMessage assigns ID and CreatedAt when empty and persists the message.
	AppendMessage(ctx context.Context, m *Message) (*Message, error)
	// RecentMessages returns the newest n messages of a room in ascending
	// creation order.
	RecentMessages(ctx context.Context, roomID string, n int) ([]Message, error)
	ListRooms(ctx context.Context) ([]Room, error)
}

// UserStore resolves verified token subjects to user records.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// Presence mirrors per-user online state into a shared store so other
// instances (and the REST plane) can see it. Purely advisory for the gateway.
type Presence interface {
	Online(ctx context.Context, userID, gatewayID string) error
	Offline(ctx context.Context, userID string) error
}
