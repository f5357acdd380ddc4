package dialog

import (
	"context"

	"github.com/m3rciful/dialogbot/core/conversation"
)

// Step carries everything one state hook may touch: the request context,
// the locked conversation row, the outbound sender and the registry. A Step
// is built per Process call and torn down with it; nothing here outlives
// the transaction, so bindings cannot leak between concurrent updates.
type Step struct {
	ctx      context.Context
	conv     *conversation.Conversation
	sender   Sender
	registry *Registry
}

// Context returns the request-scoped context.
func (s *Step) Context() context.Context {
	return s.ctx
}

// Conversation returns the currently locked conversation row.
func (s *Step) Conversation() *conversation.Conversation {
	return s.conv
}

// ChatID returns the external chat identifier of the current conversation.
func (s *Step) ChatID() int64 {
	return s.conv.TgChatID
}

// Locate builds a state from the registry; reactions use it to transition
// to an arbitrary target, visited before or not.
func (s *Step) Locate(loc string, params Params) (State, error) {
	return s.registry.Locate(loc, params)
}

// SendText sends a message to the current chat. Fire-and-forget: a nil
// return only means the message was accepted for delivery.
func (s *Step) SendText(text string) error {
	return s.sender.SendText(s.ctx, s.conv.TgChatID, text)
}
