package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/soaringjerry/valuesreport/internal/flow"
)

// Inbound is a converted update. CallbackID is set for button taps and must
// be answered so the client stops its spinner.
type Inbound struct {
	Event      flow.Event
	CallbackID string
}

// ToEvent converts an update into a flow event. Updates the bot does not act
// on (edits, channel posts, group joins) report false.
func ToEvent(u tgbotapi.Update) (Inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return Inbound{}, false
		}
		return Inbound{
			Event: flow.Event{
				UserID:   cq.From.ID,
				Username: cq.From.UserName,
				Kind:     flow.EventAction,
				Text:     cq.Data,
			},
			CallbackID: cq.ID,
		}, true
	case u.Message != nil:
		m := u.Message
		if m.From == nil || (m.Chat != nil && !m.Chat.IsPrivate()) {
			return Inbound{}, false
		}
		ev := flow.Event{UserID: m.From.ID, Username: m.From.UserName}
		if m.IsCommand() {
			ev.Kind = flow.EventCommand
			ev.Text = strings.ToLower(m.Command())
		} else {
			if strings.TrimSpace(m.Text) == "" {
				return Inbound{}, false
			}
			ev.Kind = flow.EventText
			ev.Text = m.Text
		}
		return Inbound{Event: ev}, true
	}
	return Inbound{}, false
}

// Keyboard converts button rows to an inline keyboard.
func Keyboard(rows [][]flow.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}
