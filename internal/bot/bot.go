// Package bot is the Telegram operator console. It exposes the scheduler's
// manual triggers and a read-only view of the deal catalog.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"winedeals/internal/config"
	"winedeals/internal/ingest"
	"winedeals/internal/model"
	"winedeals/internal/scheduler"
	"winedeals/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Operator runs the pipeline actions on demand.
type Operator interface {
	RunIngestion(ctx context.Context) (ingest.Summary, error)
	RunNotification(ctx context.Context) (scheduler.NotifySummary, error)
	RunCleanup(ctx context.Context) (int64, error)
	SendNow(ctx context.Context, userID string) (scheduler.SendResult, error)
	SendTest(ctx context.Context, userID string) (scheduler.SendResult, error)
}

// Catalog is the read side of the deal store the console browses.
type Catalog interface {
	FindActiveByName(ctx context.Context, q storage.DealQuery) (model.Page, error)
	GetDeal(ctx context.Context, id string) (*model.DealRecord, error)
	ListShops(ctx context.Context) ([]model.ShopSummary, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// Bot is the Telegram bot that handles operator commands.
type Bot struct {
	api   telegramAPI
	ops   Operator
	deals Catalog
	cfg   *config.Config
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, ops Operator, deals Catalog, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		ops:   ops,
		deals: deals,
		cfg:   cfg,
		log:   log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if update.CallbackQuery.From == nil || !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "ingest":
		b.handleIngest(ctx, chatID)
	case "notify":
		b.handleNotify(ctx, chatID)
	case "cleanup":
		b.handleCleanup(ctx, chatID)
	case "send":
		b.handleSend(ctx, chatID, args)
	case "test":
		b.handleTest(ctx, chatID, args)
	case cmdDeals:
		b.handleDeals(ctx, chatID, args)
	case cmdDeal:
		b.handleDeal(ctx, chatID, args)
	case "shops":
		b.handleShops(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
