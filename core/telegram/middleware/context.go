// Package middleware contains global telebot middlewares: panic recovery
// and per-update logging context propagation.
package middleware

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

const ctxStoreKey = "dialogbot_ctx"

// StoreContext attaches a request context to the telebot context so the
// dispatch handler can pick it up past telebot's own plumbing.
func StoreContext(c tele.Context, ctx context.Context) {
	c.Set(ctxStoreKey, ctx)
}

// ContextFrom returns the stored request context, or context.Background
// when no middleware ran.
func ContextFrom(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxStoreKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}
