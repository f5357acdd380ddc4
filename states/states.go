// Package states defines the bot's conversation flow: the first message a
// chat ever sends triggers a greeting, after which the bot echoes every
// text message back.
package states

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dialogbot/core/dialog"
)

const (
	// FirstContactLocator is the flow's entry point.
	FirstContactLocator = "/"
	// EchoLocator is where the conversation settles.
	EchoLocator = "/welcome/"

	greetingText = "Welcome! This is your first echo bot."
)

// NewRouter builds the registry with the full conversation flow.
func NewRouter() *dialog.Registry {
	reg := dialog.NewRegistry()
	reg.MustRegister(FirstContactLocator, func(dialog.Params) (dialog.State, error) {
		return &FirstContactState{}, nil
	})
	reg.MustRegister(EchoLocator, func(dialog.Params) (dialog.State, error) {
		return &EchoState{}, nil
	})
	return reg
}

// FirstContactState handles the very first message of a chat. The text of
// that message is ignored; the bot greets the user and settles into the
// echo state. Conversations reset after a bad restore also pass through
// here, so the user gets the greeting again instead of silence.
type FirstContactState struct{}

func (s *FirstContactState) Locator() string       { return FirstContactLocator }
func (s *FirstContactState) Params() dialog.Params { return nil }

func (s *FirstContactState) ReactOnMessage(step *dialog.Step, _ *tele.Message) (dialog.State, error) {
	if err := step.SendText(greetingText); err != nil {
		return nil, err
	}
	return step.Locate(EchoLocator, nil)
}

// EchoState repeats every text message back to the chat.
type EchoState struct{}

func (s *EchoState) Locator() string       { return EchoLocator }
func (s *EchoState) Params() dialog.Params { return nil }

func (s *EchoState) ReactOnMessage(step *dialog.Step, msg *tele.Message) (dialog.State, error) {
	if msg.Text == "" {
		return nil, nil
	}
	if err := step.SendText(msg.Text); err != nil {
		return nil, err
	}
	return step.Locate(EchoLocator, nil)
}
