// Package throttle enforces fixed-window rate limits per (user, event class).
// One parameterized guard driven by a rule table; adding a throttled event is a
// table entry, not a new type. Counters live in a store shared by every gateway
// instance so load-balancer rotation cannot reset a user's budget.
package throttle

import (
	"context"
	"time"

	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
)

// Event classes known to the gateway.
const (
	ClassMessageSend = "message-send"
	ClassTyping      = "typing"
	ClassSpamGuard   = "spam-guard"
	ClassRoomCreate  = "room-create"
	ClassLongMessage = "long-message"
)

type Rule struct {
	Limit  int
	Window time.Duration
}

type Table map[string]Rule

// DefaultTable mirrors the production limits.
func DefaultTable() Table {
	return Table{
		ClassMessageSend: {Limit: 10, Window: 60 * time.Second},
		ClassTyping:      {Limit: 20, Window: 60 * time.Second},
		ClassSpamGuard:   {Limit: 3, Window: 10 * time.Second},
		ClassRoomCreate:  {Limit: 5, Window: 60 * time.Second},
		ClassLongMessage: {Limit: 2, Window: 300 * time.Second},
	}
}

// CounterStore increments the counter behind key, setting the expiry to window
// when this is the first increment. The increment must be atomic across
// processes. The count after increment is returned.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Guard struct {
	store CounterStore
	rules Table
}

func NewGuard(store CounterStore, rules Table) *Guard {
	if rules == nil {
		rules = DefaultTable()
	}
	return &Guard{store: store, rules: rules}
}

// Allow spends one unit of userID's budget for class. Returns nil when within
// the limit, errs.ErrThrottled when over it, or the store error. Over-limit
// increments are not rolled back: the bucket stays spent until natural expiry.
func (g *Guard) Allow(ctx context.Context, userID, class string) error {
	r, ok := g.rules[class]
	if !ok || r.Limit <= 0 {
		return nil
	}
	n, err := g.store.Incr(ctx, counterKey(userID, class), r.Window)
	if err != nil {
		return errs.ErrPersistence.WrapMsg("throttle incr class=%s: %v", class, err)
	}
	if n > int64(r.Limit) {
		return errs.ErrThrottled.WrapMsg("class=%s n=%d limit=%d", class, n, r.Limit)
	}
	return nil
}

func counterKey(userID, class string) string {
	return "chat:throttle:" + class + ":" + userID
}
