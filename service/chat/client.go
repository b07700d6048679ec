package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
)

// Device is the metadata recorded per connection at handshake.
type Device struct {
	UserAgent   string
	ConnectedAt time.Time
}

// Conn is one live client session: owned by exactly one authenticated user,
// member of at most one room (tracked by Rooms). Writes go through Send and a
// single writer pump, never directly at the socket.
type Conn struct {
	ID       string
	UserID   string
	UserName string
	Device   Device

	WS   *websocket.Conn // nil in tests
	Send chan []byte     // outbound frames, drained by writePump

	closeOnce sync.Once
	done      chan struct{}
}

const (
	sendQueueSize = 256
	writeWait     = 5 * time.Second
	pongWait      = 75 * time.Second
	pingPeriod    = 25 * time.Second
)

func NewConn(id string, ws *websocket.Conn, userAgent string, now time.Time) *Conn {
	return &Conn{
		ID:     id,
		WS:     ws,
		Device: Device{UserAgent: userAgent, ConnectedAt: now},
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues an outbound frame without blocking. Slow clients drop frames
// rather than stall the broadcaster.
func (c *Conn) Enqueue(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		logger.Debugf("[conn] send queue full, drop frame conn=%s user=%s", c.ID, c.UserID)
		return false
	}
}

// Close releases the connection once; safe from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS != nil {
			_ = c.WS.Close()
		}
	})
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// writePump is the single writer goroutine for this connection. It also owns
// the ping ticker; gorilla conns must not be written concurrently.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.Send:
			if !ok {
				return
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("[conn] write failed conn=%s err=%v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
