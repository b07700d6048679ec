package fanout

import "golang.org/x/net/context"

// Message is the unit handed to subscribers. Data is the handler's own copy;
// buses must not reuse the slice after dispatch.
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Handler consumes one message. The returned error is advisory: the core
// pub/sub path has no redelivery, middleware decides what to do with it.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps a Handler with a cross-cutting concern such as logging
// or retries.
type Middleware func(Handler) Handler

// Chain wraps h so the first-listed middleware runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
