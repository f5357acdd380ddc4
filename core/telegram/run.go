// Package telegram owns the bot transport: update polling or webhook
// intake, the HTTP client, global middlewares and the routing of every
// update kind into the dialog runner.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/dialogbot/core/config"
	"github.com/m3rciful/dialogbot/core/conversation"
	"github.com/m3rciful/dialogbot/core/diagnostics"
	"github.com/m3rciful/dialogbot/core/dialog"
	"github.com/m3rciful/dialogbot/core/logger"
	"github.com/m3rciful/dialogbot/core/metrics"
	"github.com/m3rciful/dialogbot/core/telegram/middleware"
	tgsender "github.com/m3rciful/dialogbot/core/telegram/sender"
)

// Middleware is a named global bot middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// RunOptions wires the bot transport to the dialog state machine.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *dialog.Registry
	Store    conversation.Store

	Diagnostics diagnostics.Reporter
	Metrics     *metrics.Set

	DispatcherOptions tgsender.Options

	// Middlewares run after the built-in recovery and logging ones.
	Middlewares []Middleware

	DisableWebhookCleanup bool
}

// updateEndpoints are the telebot endpoints routed into the dialog runner.
// Everything a private chat can produce lands here; the runner decides per
// state what reacts.
var updateEndpoints = []string{
	tele.OnText,
	tele.OnMedia,
	tele.OnSticker,
	tele.OnContact,
	tele.OnLocation,
	tele.OnCallback,
}

// RunTelegram composes and runs the bot until the context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		WebhookListen:          cfg.Webhook.Listen,
		WebhookPort:            cfg.Webhook.Port,
		WebhookURL:             cfg.Webhook.URL,
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	runner, err := dialog.NewRunner(dialog.RunnerOptions{
		Registry:    opts.Registry,
		Store:       opts.Store,
		Sender:      tgsender.NewClient(bot),
		Diagnostics: opts.Diagnostics,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return err
	}

	dispatcher := tgsender.NewDispatcher(opts.DispatcherOptions)
	defer dispatcher.Close()

	logRunMode(ctx, cfg, poller, time.Since(buildStart))

	if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		if err := deleteWebhook(cfg.Telegram.Token, false); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		} else {
			logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
		}
	}

	bot.Use(middleware.Recover)
	bot.Use(middleware.Logging)
	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	dispatch := func(c tele.Context) error {
		reqCtx := middleware.ContextFrom(c)
		upd := c.Update()
		if err := runner.Process(reqCtx, &upd); err != nil {
			return err
		}
		if cb := upd.Callback; cb != nil {
			// Acknowledge the button press off the hot path; the step
			// already committed.
			if qErr := dispatcher.Enqueue(reqCtx, "callback.ack", func() error {
				return bot.Respond(cb, &tele.CallbackResponse{})
			}); qErr != nil {
				logger.Warn(reqCtx, "tg", "callback.ack.drop",
					slog.String("err", qErr.Error()),
				)
			}
		}
		return nil
	}
	for _, endpoint := range updateEndpoints {
		bot.Handle(endpoint, dispatch)
	}

	stopMetrics := startMetricsServer(ctx, cfg.Metrics.Listen, opts.Metrics)
	defer stopMetrics()

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

func logRunMode(ctx context.Context, cfg *coreconfig.Config, poller tele.Poller, buildTook time.Duration) {
	if wh, ok := poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		return
	}
	timeoutSec := cfg.Telegram.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", timeoutSec),
		slog.Duration("duration", logger.RoundMS(buildTook)),
	)
}

// startMetricsServer exposes /metrics when a listen address is configured.
// The returned stop function shuts the listener down.
func startMetricsServer(ctx context.Context, listen string, set *metrics.Set) func() {
	if strings.TrimSpace(listen) == "" || set == nil {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", set.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		logger.Info(ctx, "tg", "metrics.listen", slog.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "tg", "metrics.listen",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
