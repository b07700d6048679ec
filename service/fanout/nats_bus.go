package fanout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsBus implements Bus on NATS core pub/sub. Room/presence traffic is
// fire-and-forget realtime state, so no JetStream persistence here.
type NatsBus struct {
	cfg Config
	nc  *nats.Conn
	mws []Middleware

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNatsBus(cfg Config, mws ...Middleware) (*NatsBus, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{cfg: cfg, nc: nc, mws: mws}, nil
}

func (b *NatsBus) Publish(_ context.Context, subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

func (b *NatsBus) Subscribe(subject string, h Handler) (Subscription, error) {
	h = Chain(h, b.mws...)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		_ = h(context.Background(), Message{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		})
	})
	if err != nil {
		return nil, err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return &natsSub{sub: sub}, nil
}

// Close 优雅关闭
func (b *NatsBus) Close() error {
	b.mu.Lock()
	for _, s := range b.subs {
		_ = s.Drain()
	}
	b.subs = nil
	b.mu.Unlock()
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Unsubscribe() error { return s.sub.Unsubscribe() }

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
