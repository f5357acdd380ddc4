package states

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dialogbot/core/conversation"
	"github.com/m3rciful/dialogbot/core/dialog"
)

type memorySender struct {
	mu   sync.Mutex
	sent []string
}

func (s *memorySender) SendText(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *memorySender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newBotRunner(t *testing.T) (*dialog.Runner, *conversation.MemoryStore, *memorySender) {
	t.Helper()
	store := conversation.NewMemoryStore()
	sender := &memorySender{}
	runner, err := dialog.NewRunner(dialog.RunnerOptions{
		Registry: NewRouter(),
		Store:    store,
		Sender:   sender,
	})
	require.NoError(t, err)
	return runner, store, sender
}

func textUpdate(id int, chatID int64, text string) *tele.Update {
	return &tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: chatID, Username: "ada"},
			Chat:   &tele.Chat{ID: chatID},
			Text:   text,
		},
	}
}

func TestRouterRegistersFlow(t *testing.T) {
	reg := NewRouter()
	assert.Equal(t, []string{FirstContactLocator, EchoLocator}, reg.Locators())
}

func TestFirstMessageIsGreetedNotEchoed(t *testing.T) {
	runner, store, sender := newBotRunner(t)

	err := runner.Process(context.Background(), textUpdate(1, 100, "anything at all"))
	require.NoError(t, err)

	assert.Equal(t, []string{greetingText}, sender.texts())

	row, ok := store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, EchoLocator, row.StateLocator)
}

func TestFollowUpMessagesAreEchoed(t *testing.T) {
	runner, _, sender := newBotRunner(t)
	ctx := context.Background()

	require.NoError(t, runner.Process(ctx, textUpdate(1, 100, "hello")))
	require.NoError(t, runner.Process(ctx, textUpdate(2, 100, "one")))
	require.NoError(t, runner.Process(ctx, textUpdate(3, 100, "two")))

	assert.Equal(t, []string{greetingText, "one", "two"}, sender.texts())
}

func TestEchoIgnoresNonTextMessages(t *testing.T) {
	runner, store, sender := newBotRunner(t)
	ctx := context.Background()

	require.NoError(t, runner.Process(ctx, textUpdate(1, 100, "hello")))
	sticker := textUpdate(2, 100, "")
	require.NoError(t, runner.Process(ctx, sticker))

	assert.Equal(t, []string{greetingText}, sender.texts())
	row, ok := store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, EchoLocator, row.StateLocator)
}

func TestChatsAreIndependent(t *testing.T) {
	runner, _, sender := newBotRunner(t)
	ctx := context.Background()

	require.NoError(t, runner.Process(ctx, textUpdate(1, 100, "hi")))
	require.NoError(t, runner.Process(ctx, textUpdate(2, 200, "hi")))

	// Both chats are on first contact and get greeted.
	assert.Equal(t, []string{greetingText, greetingText}, sender.texts())
}
