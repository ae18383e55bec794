package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/soaringjerry/valuesreport/internal/flow"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// API is the slice of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Outbox sends flow messages and report documents to private chats, where
// the chat id equals the user id.
type Outbox struct {
	api API
}

func NewOutbox(api API) *Outbox { return &Outbox{api: api} }

func (o *Outbox) Send(ctx context.Context, userID int64, msg flow.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := tgbotapi.NewMessage(userID, msg.Text)
	if len(msg.Buttons) > 0 {
		out.ReplyMarkup = Keyboard(msg.Buttons)
	}
	if _, err := o.api.Send(out); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

func (o *Outbox) SendDocument(ctx context.Context, userID int64, att services.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{Name: att.Name, Bytes: att.Data})
	doc.Caption = att.Caption
	if _, err := o.api.Send(doc); err != nil {
		return fmt.Errorf("telegram send document: %w", err)
	}
	return nil
}

func (o *Outbox) answerCallback(id string) error {
	if id == "" {
		return nil
	}
	_, err := o.api.Request(tgbotapi.NewCallback(id, ""))
	return err
}
