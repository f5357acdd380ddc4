package dialog

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/dialogbot/core/conversation"
	"github.com/m3rciful/dialogbot/core/diagnostics"
	"github.com/m3rciful/dialogbot/core/locator"
	"github.com/m3rciful/dialogbot/core/logger"
	"github.com/m3rciful/dialogbot/core/metrics"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// RunnerOptions wires the collaborators of a Runner.
type RunnerOptions struct {
	Registry *Registry
	Store    conversation.Store
	Sender   Sender

	// Diagnostics defaults to a log-backed reporter.
	Diagnostics diagnostics.Reporter
	// Metrics may be nil; all recording is nil-safe.
	Metrics *metrics.Set
}

// Runner executes one state-machine step per inbound update. It is safe
// for concurrent use: updates for the same chat serialize on the store's
// row lock and updates for different chats run in parallel.
type Runner struct {
	registry *Registry
	store    conversation.Store
	sender   Sender
	diag     diagnostics.Reporter
	metrics  *metrics.Set
}

// NewRunner validates the wiring and builds a Runner. A registry without a
// root state is a configuration error: every conversation that cannot be
// restored starts at the root locator.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("dialog: nil registry")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("dialog: nil conversation store")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("dialog: nil sender")
	}
	if !opts.Registry.Has(locator.Root) {
		return nil, fmt.Errorf("dialog: no state registered for root locator %q", locator.Root)
	}
	diag := opts.Diagnostics
	if diag == nil {
		diag = diagnostics.NewLogReporter(opts.Metrics)
	}
	return &Runner{
		registry: opts.Registry,
		store:    opts.Store,
		sender:   opts.Sender,
		diag:     diag,
		metrics:  opts.Metrics,
	}, nil
}

// Process handles one inbound update: identify the conversation, lock and
// fetch (or create) its row, restore or initialize the state, run the
// matching reaction and persist the resulting state. Everything between
// lock and persist happens in one durable transaction; any error aborts it
// with no partial writes and propagates to the delivery layer. Updates
// without an identifiable sender are discarded and count as handled.
func (r *Runner) Process(ctx context.Context, upd *tele.Update) error {
	start := time.Now()

	ident, ok := IdentityFromUpdate(upd)
	if !ok {
		updateID := 0
		if upd != nil {
			updateID = upd.ID
		}
		logger.Debug(ctx, "dialog", "update.discarded",
			slog.String("status", "discarded"),
			slog.Int("update_id", updateID),
		)
		r.metrics.Outcome(metrics.OutcomeDiscarded)
		return nil
	}

	ctx = logger.WithUpdateMeta(ctx, upd.ID, ident.UserID, ident.ChatID)
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(upd.ID, ident.ChatID, ident.UserID))
	}

	var summary stepSummary
	err := r.store.Within(ctx, func(tx conversation.Tx) error {
		return r.step(ctx, tx, ident, upd, &summary)
	})

	if err != nil {
		r.metrics.Outcome(metrics.OutcomeError)
		logger.Error(ctx, "dialog", "step.fail",
			slog.String("status", "fail"),
			slog.String("state_locator", summary.from),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return err
	}

	r.metrics.Outcome(metrics.OutcomeOK)
	logger.Debug(ctx, "dialog", "step.done",
		slog.String("status", "ok"),
		slog.String("state_locator", summary.from),
		slog.String("next_locator", summary.to),
		slog.Bool("created", summary.created),
		slog.Bool("restored", summary.restored),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

type stepSummary struct {
	from     string
	to       string
	created  bool
	restored bool
}

func (r *Runner) step(ctx context.Context, tx conversation.Tx, ident conversation.Identity, upd *tele.Update, summary *stepSummary) error {
	conv, created, err := tx.GetOrCreateLocked(ctx, ident)
	if err != nil {
		return err
	}
	summary.created = created
	summary.from = conv.StateLocator
	if created {
		r.metrics.Created()
	}

	// Identity drift: usernames change, accounts get renamed. Refresh
	// opportunistically, independent of the state transition.
	if conv.TgUserID != ident.UserID || conv.TgUsername != ident.Username {
		if err := tx.UpdateIdentity(ctx, ident.ChatID, ident.UserID, ident.Username); err != nil {
			return err
		}
		conv.TgUserID = ident.UserID
		conv.TgUsername = ident.Username
	}

	restored, reason := RestoreState(ctx, r.registry, conv, r.diag)
	if reason != "" {
		r.metrics.Reset(reason)
	}
	summary.restored = restored != nil

	current := restored
	if current == nil {
		current, err = r.registry.Locate(locator.Root, nil)
		if err != nil {
			return fmt.Errorf("locate root state: %w", err)
		}
	}

	step := &Step{ctx: ctx, conv: conv, sender: r.sender, registry: r.registry}

	// A conversation that starts (or restarts) at root runs the entry hook
	// a restored one already ran before its state was persisted.
	if restored == nil {
		entered, err := enterState(current, step)
		if err != nil {
			return err
		}
		if entered != nil {
			current = entered
		}
	}

	next, err := react(current, step, upd)
	if err != nil {
		return err
	}
	if next != nil {
		current = next
	}

	dump, err := conversation.DumpParams(current.Params())
	if err != nil {
		return err
	}
	if err := locator.Validate(current.Locator()); err != nil {
		return err
	}
	summary.to = current.Locator()
	return tx.UpdateState(ctx, conv.TgChatID, current.Locator(), dump)
}

func enterState(st State, step *Step) (State, error) {
	hook, ok := st.(EnterHook)
	if !ok {
		return nil, nil
	}
	return hook.EnterState(step)
}

func react(st State, step *Step, upd *tele.Update) (State, error) {
	switch {
	case upd.Message != nil:
		if reactor, ok := st.(MessageReactor); ok {
			return reactor.ReactOnMessage(step, upd.Message)
		}
	case upd.Callback != nil:
		if reactor, ok := st.(CallbackReactor); ok {
			return reactor.ReactOnCallback(step, upd.Callback)
		}
	}
	return nil, nil
}
