// Package dialog implements the per-conversation state machine: a registry
// of state variants keyed by locator, defensive restoration of persisted
// state, and the runner that executes exactly one step per inbound update
// under an exclusive per-chat row lock.
package dialog

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// Params is the serializable field set of a state variant, excluding the
// locator itself. Values must be JSON-marshalable.
type Params map[string]any

// State is one unit of conversation behaviour. Implementations additionally
// satisfy any of the optional hook interfaces below; the runner discovers
// them by type assertion.
type State interface {
	// Locator returns the canonical identity of this variant.
	Locator() string
	// Params returns the variant's serializable fields. The locator is
	// never part of the params.
	Params() Params
}

// EnterHook runs when a conversation transitions into the state without a
// restorable predecessor: on first contact and after a state reset. It may
// hand back a successor, which is adopted without running that successor's
// own entry hook.
type EnterHook interface {
	EnterState(step *Step) (State, error)
}

// MessageReactor handles a plain or reply-keyboard message. Returning nil
// keeps the current state; returning a state (possibly with the same
// locator) transitions, replacing the persisted params.
type MessageReactor interface {
	ReactOnMessage(step *Step, msg *tele.Message) (State, error)
}

// CallbackReactor handles an inline keyboard button press.
type CallbackReactor interface {
	ReactOnCallback(step *Step, cb *tele.Callback) (State, error)
}

// Sender delivers outbound messages. Sending is fire-and-forget from the
// state machine's point of view: delivery failures are not retried here.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}
