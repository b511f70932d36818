package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"winedeals/internal/model"
)

const (
	cmdDeals = "deals"
	cmdDeal  = "deal"

	// Telegram rejects callback data longer than this.
	maxCallbackData = 64
)

func newMessage(chatID int64, text string) tgbotapi.MessageConfig {
	return tgbotapi.NewMessage(chatID, text)
}

// pageKeyboard builds Prev/Next buttons for a deal page. It reports false
// when there is nowhere to go or the wine name does not fit in callback data.
func pageKeyboard(args DealsArgs, page model.Page) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if page.HasPrev && len(page.Deals) > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("« Prev", pageData(args.Name, args.Page-1)))
	}
	if page.HasNext {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next »", pageData(args.Name, args.Page+1)))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	for _, btn := range row {
		if btn.CallbackData == nil || len(*btn.CallbackData) > maxCallbackData {
			return tgbotapi.InlineKeyboardMarkup{}, false
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func pageData(name string, page int) string {
	return fmt.Sprintf("%s:%d:%s", cmdDeals, page, name)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, payload, ok := strings.Cut(cb.Data, ":")
	if !ok || action != cmdDeals {
		return
	}

	b.log.Info("callback",
		"action", action,
		"payload", payload,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	args, err := parsePageCallback(payload)
	if err != nil {
		b.log.Warn("bad callback", "data", cb.Data, "error", err)
		return
	}
	b.showDeals(ctx, chatID, args)
}
