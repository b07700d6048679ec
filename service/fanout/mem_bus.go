package fanout

import (
	"context"
	"strings"
	"sync"
)

// MemBus is an in-process Bus used by tests and single-node development.
// Delivery is synchronous in Publish order. Supports the '*' token wildcard.
type MemBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memSub
	mws    []Middleware
	closed bool
}

type memSub struct {
	id      int
	subject string
	h       Handler
	bus     *MemBus
}

func NewMemBus(mws ...Middleware) *MemBus {
	return &MemBus{subs: make(map[int]*memSub), mws: mws}
}

func (b *MemBus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.RLock()
	var targets []*memSub
	for _, s := range b.subs {
		if subjectMatch(s.subject, subject) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		_ = s.h(ctx, Message{Subject: subject, Data: append([]byte(nil), data...)})
	}
	return nil
}

func (b *MemBus) Subscribe(subject string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &memSub{id: b.nextID, subject: subject, h: Chain(h, b.mws...), bus: b}
	b.subs[s.id] = s
	return s, nil
}

func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]*memSub)
	b.closed = true
	return nil
}

func (s *memSub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}

// subjectMatch implements NATS-style token matching for '*' (single token)
// and '>' (rest of subject).
func subjectMatch(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			// '>' needs at least one remaining subject token
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
