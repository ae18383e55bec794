// Package telegram connects the conversation flow to the Telegram Bot API,
// by long polling or by webhook.
package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/flow"
	"github.com/soaringjerry/valuesreport/internal/logging"
)

// Handler consumes converted events; *flow.Machine implements it.
type Handler interface {
	Handle(ctx context.Context, ev flow.Event) error
}

// Bot handles updates under its own work context rather than the context that
// stops polling, so queued updates can finish during Shutdown.
type Bot struct {
	api      *tgbotapi.BotAPI
	outbox   *Outbox
	handler  Handler
	lanes    *lanes
	logger   *zap.Logger
	timeout  int
	work     context.Context
	stopWork context.CancelFunc
}

// Connect authenticates with the Bot API.
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewBot(api *tgbotapi.BotAPI, handler Handler, pollTimeout int, logger *zap.Logger) *Bot {
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	work, stop := context.WithCancel(context.Background())
	return &Bot{
		api:      api,
		outbox:   NewOutbox(api),
		handler:  handler,
		lanes:    newLanes(),
		logger:   logging.OrNop(logger),
		timeout:  pollTimeout,
		work:     work,
		stopWork: stop,
	}
}

func (b *Bot) Outbox() *Outbox { return b.outbox }

// Dispatch queues an update behind earlier updates from the same user.
func (b *Bot) Dispatch(u tgbotapi.Update) {
	dispatch(b.work, b.lanes, b.outbox, b.handler, b.logger, u)
}

func dispatch(ctx context.Context, l *lanes, out *Outbox, h Handler, logger *zap.Logger, u tgbotapi.Update) {
	in, ok := ToEvent(u)
	if !ok {
		logger.Debug("update ignored", zap.Int("update_id", u.UpdateID))
		return
	}
	l.submit(in.Event.UserID, func() {
		if err := out.answerCallback(in.CallbackID); err != nil {
			logger.Warn("answer callback failed", zap.Int64("user_id", in.Event.UserID), zap.Error(err))
		}
		if err := h.Handle(ctx, in.Event); err != nil {
			logger.Error("handle update failed",
				zap.Int64("user_id", in.Event.UserID), zap.String("kind", in.Event.Kind.String()), zap.Error(err))
		}
	})
}

// RunPolling long-polls until ctx is done. Queued updates keep running; call
// Shutdown to wait for them.
func (b *Bot) RunPolling(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram delete webhook: %w", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram polling started", zap.String("bot", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.Dispatch(upd)
		}
	}
}

// WebhookPath derives a stable, unguessable path from the bot token.
func WebhookPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "/telegram/" + hex.EncodeToString(sum[:16])
}

// RegisterWebhook points Telegram at baseURL + WebhookPath(token).
func (b *Bot) RegisterWebhook(baseURL string) (string, error) {
	url := strings.TrimRight(baseURL, "/") + WebhookPath(b.api.Token)
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return "", fmt.Errorf("telegram webhook config: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return "", fmt.Errorf("telegram set webhook: %w", err)
	}
	b.logger.Info("telegram webhook registered", zap.String("path", WebhookPath(b.api.Token)))
	return url, nil
}

// WebhookHandler accepts update posts from Telegram. Work runs under the bot's
// work context, not the request context, because Telegram expects a quick 200.
func (b *Bot) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		upd, err := b.api.HandleUpdate(r)
		if err != nil {
			b.logger.Warn("bad webhook update", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		b.Dispatch(*upd)
		w.WriteHeader(http.StatusOK)
	})
}

// Wait blocks until all dispatched updates are handled.
func (b *Bot) Wait() { b.lanes.wait() }

// Shutdown waits for dispatched updates to finish. When ctx ends first the
// work context is cancelled, running handlers unwind, and ctx.Err() is
// returned once they have. Stop feeding updates before calling it.
func (b *Bot) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.lanes.wait()
		close(done)
	}()
	select {
	case <-done:
		b.stopWork()
		return nil
	case <-ctx.Done():
		b.logger.Warn("drain deadline reached, cancelling in-flight updates")
		b.stopWork()
		<-done
		return ctx.Err()
	}
}
