package sender

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dialogbot/core/logger"
)

// API is the slice of the bot surface the client needs. *tele.Bot
// satisfies it.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Client sends messages synchronously on behalf of state-machine steps.
// Errors propagate to the caller so a failed delivery aborts the step's
// transaction instead of leaving the conversation half-advanced.
type Client struct {
	api API
}

// NewClient wraps a bot handle.
func NewClient(api API) *Client {
	return &Client{api: api}
}

// SendText delivers a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.api.Send(&tele.Chat{ID: chatID}, text)
	if err != nil {
		logger.Warn(ctx, "tg.sender", "send.text.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", SanitizeError(err)),
		)
		return fmt.Errorf("send text to chat %d: %w", chatID, err)
	}
	logger.Debug(ctx, "tg.sender", "send.text",
		slog.Int64("chat_id", chatID),
		slog.Int("len", len(text)),
	)
	return nil
}
