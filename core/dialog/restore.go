package dialog

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/dialogbot/core/conversation"
	"github.com/m3rciful/dialogbot/core/diagnostics"
	"github.com/m3rciful/dialogbot/core/logger"
	"github.com/m3rciful/dialogbot/core/metrics"
	"log/slog"
)

// legacyLocatorParamKey is the locator column name; historical bad writes
// leaked it into the params payload, so restoration strips it.
const legacyLocatorParamKey = "state_locator"

// RestoreState reconstructs a live state from a persisted conversation row.
// It never fails: state definitions evolve in production and an old payload
// must not crash the dispatcher. On any restore problem the conversation is
// treated as having no previous state: the runner restarts it from root and
// the next successful step overwrites the bad row.
//
// The returned reason is empty when a state was restored or the row simply
// has no state yet; otherwise it names why the persisted state was reset.
func RestoreState(ctx context.Context, reg *Registry, conv *conversation.Conversation, diag diagnostics.Reporter) (State, string) {
	if conv.StateLocator == "" {
		return nil, ""
	}

	params, err := conv.StateParams.Object()
	if err != nil {
		paramsType := jsonValueType(conv.StateParams)
		logger.Warn(ctx, "dialog", "restore.reset",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("reason", metrics.ReasonCorruptParams),
			slog.String("params_type", paramsType),
		)
		diag.Warning(ctx, "state_params.invalid_type",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("params_type", paramsType),
			slog.String("params", logger.SanitizeLimit(string(conv.StateParams), 256)),
		)
		return nil, metrics.ReasonCorruptParams
	}
	delete(params, legacyLocatorParamKey)

	st, err := reg.Locate(conv.StateLocator, Params(params))
	if err == nil {
		return st, ""
	}

	var unknown *UnknownLocatorError
	if errors.As(err, &unknown) {
		logger.Warn(ctx, "dialog", "restore.reset",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("reason", metrics.ReasonUnknownLocator),
			slog.String("state_locator", conv.StateLocator),
		)
		diag.Warning(ctx, "state_locator.unknown",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("state_locator", conv.StateLocator),
		)
		return nil, metrics.ReasonUnknownLocator
	}

	var invalid *ValidationError
	if errors.As(err, &invalid) {
		logger.Warn(ctx, "dialog", "restore.reset",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("reason", metrics.ReasonInvalidParams),
			slog.String("state_locator", conv.StateLocator),
			slog.String("cause", invalid.Error()),
		)
		diag.Warning(ctx, "state_params.invalid",
			slog.Int64("chat_id", conv.TgChatID),
			slog.String("state_locator", conv.StateLocator),
			slog.String("cause", invalid.Error()),
		)
		return nil, metrics.ReasonInvalidParams
	}

	// Locate has exactly two failure classes; anything else is a bug in a
	// builder. Treat it as invalid params rather than crashing the step.
	logger.Warn(ctx, "dialog", "restore.reset",
		slog.Int64("chat_id", conv.TgChatID),
		slog.String("reason", metrics.ReasonInvalidParams),
		slog.String("state_locator", conv.StateLocator),
		slog.String("cause", err.Error()),
	)
	diag.Warning(ctx, "state.restore_failed",
		slog.Int64("chat_id", conv.TgChatID),
		slog.String("state_locator", conv.StateLocator),
		slog.String("cause", err.Error()),
	)
	return nil, metrics.ReasonInvalidParams
}

func jsonValueType(raw conversation.ParamsDump) string {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return "object"
		case '[':
			return "array"
		case '"':
			return "string"
		case 't', 'f':
			return "bool"
		case 'n':
			return "null"
		default:
			return "number"
		}
	}
	return fmt.Sprintf("raw(%d bytes)", len(raw))
}
