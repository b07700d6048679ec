// Package fanout is the cross-instance pub/sub bus keeping every gateway's
// room and presence view consistent. Registry memory never crosses process
// boundaries; all cross-process visibility flows through here.
package fanout

import (
	"context"
	"time"
)

// Subject layout. Room traffic fans out per room, user subjects form the
// private per-user addressable channel registered at auth time.
const (
	RoomSubjectPrefix = "chat.room."
	UserSubjectPrefix = "chat.user."
)

func RoomSubject(roomID string) string { return RoomSubjectPrefix + roomID }
func UserSubject(userID string) string { return UserSubjectPrefix + userID }

// Subscription is a live subscription handle.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the broadcast fanout contract. Subjects follow NATS token rules
// ("chat.room.*" subscribes every room).
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, h Handler) (Subscription, error)
	Close() error
}

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Config) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Name == "" {
		c.Name = "chat-gateway"
	}
}
