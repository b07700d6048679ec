// Package llm abstracts the streaming generation service. The relay consumes
// an ordered event channel: zero or more Token events terminated by exactly
// one Done or Err event, after which the channel is closed. Cancellation is
// the caller's context; backpressure is the channel buffer.
package llm

import (
	"context"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
)

// StreamEvent is one step of a generation stream.
type StreamEvent struct {
	Token string // set on token events
	Done  bool   // terminal success
	Full  string // full text, set when Done
	Err   error  // terminal failure
}

// Generator produces a streamed assistant response for a conversation.
type Generator interface {
	Stream(ctx context.Context, history []storage.Message) (<-chan StreamEvent, error)
}

// BuildContext keeps the most recent n messages. History is already in
// ascending creation order and includes the just-persisted user message.
func BuildContext(history []storage.Message, n int) []storage.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
