package sender

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	lastTo   tele.Recipient
	lastWhat interface{}
	err      error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.lastTo = to
	f.lastWhat = what
	if f.err != nil {
		return nil, f.err
	}
	return &tele.Message{}, nil
}

func TestClientSendText(t *testing.T) {
	api := &fakeAPI{}
	client := NewClient(api)

	err := client.SendText(context.Background(), 100, "hello")
	require.NoError(t, err)

	chat, ok := api.lastTo.(*tele.Chat)
	require.True(t, ok)
	assert.Equal(t, int64(100), chat.ID)
	assert.Equal(t, "hello", api.lastWhat)
}

func TestClientSendTextPropagatesError(t *testing.T) {
	cause := errors.New("telegram: forbidden (403)")
	client := NewClient(&fakeAPI{err: cause})

	err := client.SendText(context.Background(), 100, "hello")
	require.ErrorIs(t, err, cause)
}

func TestSanitizeErrorRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot12345:AAbbCCdd-ee/sendMessage": timeout`)
	assert.NotContains(t, SanitizeError(err), "12345:AAbbCCdd-ee")
	assert.Contains(t, SanitizeError(err), "bot<redacted>")
}
