package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dialogbot/core/conversation"
)

// greetState is the root of the test registry: it reacts to the first
// message of a chat with a greeting and hands the conversation over to the
// echo state.
type greetState struct{}

func (greetState) Locator() string { return "/" }
func (greetState) Params() Params  { return nil }

func (greetState) ReactOnMessage(step *Step, _ *tele.Message) (State, error) {
	if err := step.SendText("hello there"); err != nil {
		return nil, err
	}
	return echoState{}, nil
}

// echoState repeats every text message back and stays put.
type echoState struct{}

func (echoState) Locator() string { return "/welcome/" }
func (echoState) Params() Params  { return nil }

func (echoState) ReactOnMessage(step *Step, msg *tele.Message) (State, error) {
	if msg.Text != "" {
		if err := step.SendText(msg.Text); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// namedState requires a non-empty name param, so restoring it with a bad
// payload exercises the validation reset path.
type namedState struct {
	name string
}

func (s namedState) Locator() string { return "/named/" }
func (s namedState) Params() Params  { return Params{"name": s.name} }

func buildNamedState(params Params) (State, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return namedState{name: name}, nil
}

// menuState reacts to inline keyboard presses.
type menuState struct{}

func (menuState) Locator() string { return "/menu/" }
func (menuState) Params() Params  { return nil }

func (menuState) ReactOnCallback(step *Step, cb *tele.Callback) (State, error) {
	if err := step.SendText("picked " + cb.Data); err != nil {
		return nil, err
	}
	return echoState{}, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister("/", func(Params) (State, error) { return greetState{}, nil })
	reg.MustRegister("/welcome/", func(Params) (State, error) { return echoState{}, nil })
	reg.MustRegister("/named/", buildNamedState)
	reg.MustRegister("/menu/", func(Params) (State, error) { return menuState{}, nil })
	return reg
}

type sentText struct {
	ChatID int64
	Text   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentText
	fail error
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentText{ChatID: chatID, Text: text})
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Text
	}
	return out
}

type recordingReporter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingReporter) Warning(_ context.Context, event string, _ ...slog.Attr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingReporter) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func messageUpdate(id int, chatID, userID int64, username, text string) *tele.Update {
	return &tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID, Username: username},
			Chat:   &tele.Chat{ID: chatID},
			Text:   text,
		},
	}
}

func callbackUpdate(id int, chatID, userID int64, username, data string) *tele.Update {
	return &tele.Update{
		ID: id,
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID, Username: username},
			Message: &tele.Message{
				Chat: &tele.Chat{ID: chatID},
			},
			Data: data,
		},
	}
}

type runnerFixture struct {
	runner *Runner
	store  *conversation.MemoryStore
	sender *recordingSender
	diag   *recordingReporter
}

func newRunnerFixture(t *testing.T, reg *Registry) *runnerFixture {
	t.Helper()
	store := conversation.NewMemoryStore()
	sender := &recordingSender{}
	diag := &recordingReporter{}
	runner, err := NewRunner(RunnerOptions{
		Registry:    reg,
		Store:       store,
		Sender:      sender,
		Diagnostics: diag,
	})
	require.NoError(t, err)
	return &runnerFixture{runner: runner, store: store, sender: sender, diag: diag}
}

func TestNewRunnerValidatesWiring(t *testing.T) {
	reg := testRegistry(t)
	store := conversation.NewMemoryStore()
	sender := &recordingSender{}

	_, err := NewRunner(RunnerOptions{Store: store, Sender: sender})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Registry: reg, Sender: sender})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Registry: reg, Store: store})
	require.Error(t, err)

	rootless := NewRegistry()
	rootless.MustRegister("/welcome/", func(Params) (State, error) { return echoState{}, nil })
	_, err = NewRunner(RunnerOptions{Registry: rootless, Store: store, Sender: sender})
	require.ErrorContains(t, err, "root locator")
}

func TestRunnerFirstContactGreets(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))

	err := fx.runner.Process(context.Background(), messageUpdate(1, 100, 7, "ada", "hi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"hello there"}, fx.sender.texts())

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
	assert.Equal(t, int64(7), row.TgUserID)
	assert.Equal(t, "ada", row.TgUsername)
	assert.False(t, row.StartedAt.IsZero())
}

func TestRunnerEchoesAfterGreeting(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	ctx := context.Background()

	require.NoError(t, fx.runner.Process(ctx, messageUpdate(1, 100, 7, "ada", "hi")))
	require.NoError(t, fx.runner.Process(ctx, messageUpdate(2, 100, 7, "ada", "repeat me")))

	assert.Equal(t, []string{"hello there", "repeat me"}, fx.sender.texts())
}

func TestRunnerRestoredStateSkipsGreeting(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/welcome/",
	})

	err := fx.runner.Process(context.Background(), messageUpdate(3, 100, 7, "ada", "yo"))
	require.NoError(t, err)

	assert.Equal(t, []string{"yo"}, fx.sender.texts())
	assert.Empty(t, fx.diag.recorded())
}

func TestRunnerDiscardsUnidentifiedUpdate(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))

	err := fx.runner.Process(context.Background(), &tele.Update{ID: 9})
	require.NoError(t, err)

	assert.Empty(t, fx.sender.texts())
	_, ok := fx.store.Snapshot(0)
	assert.False(t, ok)
}

func TestRunnerHealsUnknownLocator(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/removed-flow/",
	})

	err := fx.runner.Process(context.Background(), messageUpdate(4, 100, 7, "ada", "hi"))
	require.NoError(t, err)

	// Restart from root: the user is greeted again, the bad row is rewritten.
	assert.Equal(t, []string{"hello there"}, fx.sender.texts())
	assert.Equal(t, []string{"state_locator.unknown"}, fx.diag.recorded())

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
}

func TestRunnerHealsCorruptParams(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/welcome/",
		StateParams:  conversation.ParamsDump(`[1, 2, 3]`),
	})

	err := fx.runner.Process(context.Background(), messageUpdate(5, 100, 7, "ada", "hi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"hello there"}, fx.sender.texts())
	assert.Equal(t, []string{"state_params.invalid_type"}, fx.diag.recorded())

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
	assert.True(t, row.StateParams.IsEmpty())
}

func TestRunnerHealsInvalidParams(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/named/",
		StateParams:  conversation.ParamsDump(`{"nickname": "ada"}`),
	})

	err := fx.runner.Process(context.Background(), messageUpdate(6, 100, 7, "ada", "hi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"hello there"}, fx.sender.texts())
	assert.Equal(t, []string{"state_params.invalid"}, fx.diag.recorded())
}

func TestRunnerDispatchesCallback(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/menu/",
	})

	err := fx.runner.Process(context.Background(), callbackUpdate(7, 100, 7, "ada", "blue"))
	require.NoError(t, err)

	assert.Equal(t, []string{"picked blue"}, fx.sender.texts())

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
}

func TestRunnerIgnoresUnhandledUpdateKind(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "ada",
		StateLocator: "/welcome/",
	})

	// The echo state has no callback reactor; the press is a no-op step.
	err := fx.runner.Process(context.Background(), callbackUpdate(8, 100, 7, "ada", "blue"))
	require.NoError(t, err)

	assert.Empty(t, fx.sender.texts())
	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
}

func TestRunnerRefreshesIdentity(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.store.Seed(conversation.Conversation{
		TgChatID: 100, TgUserID: 7, TgUsername: "old_handle",
		StateLocator: "/welcome/",
	})

	err := fx.runner.Process(context.Background(), messageUpdate(9, 100, 7, "new_handle", "hi"))
	require.NoError(t, err)

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "new_handle", row.TgUsername)
}

func TestRunnerRollsBackOnSendFailure(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	fx.sender.fail = errors.New("telegram unavailable")

	err := fx.runner.Process(context.Background(), messageUpdate(10, 100, 7, "ada", "hi"))
	require.Error(t, err)

	// Nothing persisted: the next update re-runs first contact.
	_, ok := fx.store.Snapshot(100)
	assert.False(t, ok)

	fx.sender.fail = nil
	require.NoError(t, fx.runner.Process(context.Background(), messageUpdate(11, 100, 7, "ada", "hi")))
	assert.Equal(t, []string{"hello there"}, fx.sender.texts())
}

func TestRunnerSerializesSameChat(t *testing.T) {
	fx := newRunnerFixture(t, testRegistry(t))
	ctx := context.Background()

	const updates = 8
	var wg sync.WaitGroup
	errs := make([]error, updates)
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fx.runner.Process(ctx, messageUpdate(100+i, 100, 7, "ada", "hi"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "update %d", i)
	}

	// Exactly one update observed the chat without a state and greeted; the
	// rest serialized behind the row lock and echoed.
	var greetings, echoes int
	for _, text := range fx.sender.texts() {
		switch text {
		case "hello there":
			greetings++
		case "hi":
			echoes++
		}
	}
	assert.Equal(t, 1, greetings)
	assert.Equal(t, updates-1, echoes)

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/welcome/", row.StateLocator)
}

// chainRoot exercises the entry hook: entering it immediately hands over to
// a successor, whose own entry hook must not run.
type chainRoot struct{}

func (chainRoot) Locator() string { return "/" }
func (chainRoot) Params() Params  { return nil }

func (chainRoot) EnterState(step *Step) (State, error) {
	if err := step.SendText("welcome aboard"); err != nil {
		return nil, err
	}
	return chainTarget{}, nil
}

type chainTarget struct{}

func (chainTarget) Locator() string { return "/onboarded/" }
func (chainTarget) Params() Params  { return nil }

func (chainTarget) EnterState(step *Step) (State, error) {
	if err := step.SendText("entry hook must not run"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (chainTarget) ReactOnMessage(step *Step, msg *tele.Message) (State, error) {
	if err := step.SendText("got " + msg.Text); err != nil {
		return nil, err
	}
	return nil, nil
}

func TestRunnerAdoptsEntryHookSuccessor(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("/", func(Params) (State, error) { return chainRoot{}, nil })
	reg.MustRegister("/onboarded/", func(Params) (State, error) { return chainTarget{}, nil })
	fx := newRunnerFixture(t, reg)

	err := fx.runner.Process(context.Background(), messageUpdate(1, 100, 7, "ada", "ping"))
	require.NoError(t, err)

	// The successor is adopted without re-entering, then handles the
	// triggering message itself.
	assert.Equal(t, []string{"welcome aboard", "got ping"}, fx.sender.texts())

	row, ok := fx.store.Snapshot(100)
	require.True(t, ok)
	assert.Equal(t, "/onboarded/", row.StateLocator)
}
