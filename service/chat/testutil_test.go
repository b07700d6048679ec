package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/llm"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/throttle"
)

// fakeStore is an in-memory ChatStore/UserStore for gateway tests.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]storage.Room
	messages []storage.Message
	users    map[string]storage.User
	nextID   int
	failWith error // every call returns this when set
	creates  int   // CreateRoom call count
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms: make(map[string]storage.Room),
		users: make(map[string]storage.User),
	}
}

func (s *fakeStore) GetRoom(_ context.Context, roomID string) (*storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) CreateRoom(_ context.Context, roomID, name string) (*storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.creates++
	if r, ok := s.rooms[roomID]; ok {
		return &r, nil
	}
	r := storage.Room{ID: roomID, Name: name, CreatedAt: time.Now()}
	s.rooms[roomID] = r
	return &r, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, m *storage.Message) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.nextID++
	saved := *m
	saved.ID = "m" + strconv.Itoa(s.nextID)
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, saved)
	return &saved, nil
}

func (s *fakeStore) RecentMessages(_ context.Context, roomID string, n int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []storage.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *fakeStore) ListRooms(_ context.Context) ([]storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make([]storage.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) hasContent(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Content == text {
			return true
		}
	}
	return false
}

func (s *fakeStore) lastMessage() *storage.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return nil
	}
	m := s.messages[len(s.messages)-1]
	return &m
}

// fakeGen replays a scripted event sequence.
type fakeGen struct {
	events   []llm.StreamEvent
	startErr error
}

func (g *fakeGen) Stream(_ context.Context, _ []storage.Message) (<-chan llm.StreamEvent, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	ch := make(chan llm.StreamEvent, len(g.events))
	for _, ev := range g.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func testConn(id, userID string) *Conn {
	c := NewConn(id, nil, "test-agent", time.Now())
	c.UserID = userID
	c.UserName = "name-" + userID
	return c
}

func mustAdd(t *testing.T, reg *Registry, c *Conn) {
	t.Helper()
	if ok, _ := reg.Add(c); !ok {
		t.Fatalf("registry rejected conn %s below limit", c.ID)
	}
}

func openGuard() *throttle.Guard {
	return throttle.NewGuard(throttle.NewMemStore(), throttle.Table{})
}

// recvFrame pops the next queued frame, failing the test when none arrives.
func recvFrame(t *testing.T, c *Conn) *Frame {
	t.Helper()
	select {
	case raw := <-c.Send:
		f, err := ParseFrame(raw)
		if err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame queued for conn %s", c.ID)
		return nil
	}
}

// recvEvent reads frames until one matches event, failing on timeout.
func recvEvent(t *testing.T, c *Conn, event string) *Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			f, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("no %q frame for conn %s", event, c.ID)
			return nil
		}
	}
}

func noFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame for conn %s: %s", c.ID, raw)
	default:
	}
}

func dataStr(f *Frame, key string) string {
	v, _ := f.Data[key].(string)
	return v
}

func dataInt(f *Frame, key string) int {
	switch v := f.Data[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
