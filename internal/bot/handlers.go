package bot

import (
	"context"
	"errors"
	"fmt"

	"winedeals/internal/model"
	"winedeals/internal/storage"
)

const dealsPageSize = 5

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the Wine Deals console!

Run the pipeline by hand and browse the deal catalog.

Quick start:
1. /ingest - fetch today's listings
2. /deals <wine name> - search active deals
3. /send <user_id> - email one user their digest now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Pipeline:
/ingest - fetch listings from every shop
/notify - email every eligible user their digest
/cleanup - deactivate deals past the retention period
/send <user_id> - email one user their digest now
/test <user_id> - send one user a test email

Catalog:
/deals <wine name> [page] - active deals by name
/deal <id> - deal details
/shops - shops with active deals
/stats - catalog overview`)
}

func (b *Bot) handleIngest(ctx context.Context, chatID int64) {
	b.reply(chatID, "Ingestion started...")
	sum, err := b.ops.RunIngestion(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Ingestion failed: %v", err))
		return
	}
	b.reply(chatID, FormatIngestSummary(sum))
}

func (b *Bot) handleNotify(ctx context.Context, chatID int64) {
	b.reply(chatID, "Notification started...")
	sum, err := b.ops.RunNotification(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Notification failed: %v", err))
		return
	}
	b.reply(chatID, FormatNotifySummary(sum))
}

func (b *Bot) handleCleanup(ctx context.Context, chatID int64) {
	n, err := b.ops.RunCleanup(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Cleanup failed: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Cleanup finished: %d deal(s) deactivated.", n))
}

func (b *Bot) handleSend(ctx context.Context, chatID int64, args string) {
	userID, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /send <user_id>")
		return
	}

	res, err := b.ops.SendNow(ctx, userID)
	if err != nil {
		b.reply(chatID, sendError(userID, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Digest sent to %s with %d deal(s).\nMessage ID: %s", userID, res.Deals, res.MessageID))
}

func (b *Bot) handleTest(ctx context.Context, chatID int64, args string) {
	userID, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /test <user_id>")
		return
	}

	res, err := b.ops.SendTest(ctx, userID)
	if err != nil {
		b.reply(chatID, sendError(userID, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Test email sent to %s.\nMessage ID: %s", userID, res.MessageID))
}

func sendError(userID string, err error) string {
	var verr *model.ValidationError
	switch {
	case model.IsNotFound(err):
		return fmt.Sprintf("User %s not found.", userID)
	case errors.As(err, &verr):
		return fmt.Sprintf("Cannot email %s: %s.", userID, verr.Reason)
	default:
		return fmt.Sprintf("Failed to email %s: %v", userID, err)
	}
}

func (b *Bot) handleDeals(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseDealsArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.showDeals(ctx, chatID, parsed)
}

func (b *Bot) showDeals(ctx context.Context, chatID int64, args DealsArgs) {
	page, err := b.deals.FindActiveByName(ctx, storage.DealQuery{
		NamePattern: args.Name,
		Limit:       dealsPageSize,
		Offset:      (args.Page - 1) * dealsPageSize,
	})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	msg := newMessage(chatID, FormatDealPage(args.Name, page))
	if kb, ok := pageKeyboard(args, page); ok {
		msg.ReplyMarkup = kb
	}
	b.send(msg)
}

func (b *Bot) handleDeal(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /deal <id>")
		return
	}

	d, err := b.deals.GetDeal(ctx, id)
	if err != nil {
		if model.IsNotFound(err) {
			b.reply(chatID, fmt.Sprintf("Deal %s not found.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatDeal(d))
}

func (b *Bot) handleShops(ctx context.Context, chatID int64) {
	shops, err := b.deals.ListShops(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatShops(shops))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.deals.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(st))
}
