package dialog

import (
	"github.com/m3rciful/dialogbot/core/conversation"

	tele "gopkg.in/telebot.v4"
)

// IdentityFromUpdate extracts the conversation identity from an inbound
// update. The message branch covers regular and reply-keyboard messages;
// the callback branch covers inline keyboard presses, where the chat comes
// from the message the keyboard is attached to. Updates with no
// identifiable sender (channel posts, service messages) yield false and
// are discarded by the runner.
func IdentityFromUpdate(u *tele.Update) (conversation.Identity, bool) {
	if u == nil {
		return conversation.Identity{}, false
	}

	if m := u.Message; m != nil && m.Sender != nil && m.Chat != nil {
		return conversation.Identity{
			ChatID:   m.Chat.ID,
			UserID:   m.Sender.ID,
			Username: m.Sender.Username,
		}, true
	}

	if cb := u.Callback; cb != nil && cb.Sender != nil && cb.Message != nil && cb.Message.Chat != nil {
		return conversation.Identity{
			ChatID:   cb.Message.Chat.ID,
			UserID:   cb.Sender.ID,
			Username: cb.Sender.Username,
		}, true
	}

	return conversation.Identity{}, false
}
