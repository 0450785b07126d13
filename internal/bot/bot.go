package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/model"
	"taskcal/internal/service"
)

const cbDonePrefix = "done:"

const (
	iconDefault  = "🟢"
	iconDue      = "⏳"
	iconOverdue  = "⚠️"
	iconHigh     = "❗"
	notLinkedMsg = "This chat is not linked to an account yet. Run <code>taskcal profile telegram</code> and send me <code>/link CODE</code>."
)

// botAPI is the subset of the Telegram client the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       botAPI
	auth      *service.AuthService
	users     userLister
	taskSvc   *service.TaskService
	agendaSvc *service.AgendaService
	now       func() time.Time
}

type userLister interface {
	ListWithTelegram(ctx context.Context) ([]model.User, error)
}

// NewAPI connects to Telegram with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	logger.Info("bot authorized", "account", api.Self.UserName)
	return api, nil
}

func New(api botAPI, auth *service.AuthService, users userLister, taskSvc *service.TaskService, agendaSvc *service.AgendaService) *Bot {
	return &Bot{
		api:       api,
		auth:      auth,
		users:     users,
		taskSvc:   taskSvc,
		agendaSvc: agendaSvc,
		now:       time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			logger.Error("handle callback", "error", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			logger.Error("handle message", "error", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}
	logger.Debug("bot command", "chat", msg.Chat.ID, "command", msg.Command())

	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(msg)
	case "link":
		return b.handleLink(ctx, msg)
	case "unlink":
		return b.handleUnlink(ctx, msg)
	case "tasks":
		return b.withUser(ctx, msg.Chat.ID, func(user *model.User) error {
			return b.sendTaskList(ctx, msg.Chat.ID, user)
		})
	case "done":
		return b.handleDone(ctx, msg)
	case "agenda":
		return b.withUser(ctx, msg.Chat.ID, func(user *model.User) error {
			text, err := b.agendaSvc.DailySummary(ctx, user.ID, b.now())
			if err != nil {
				return b.sendText(msg.Chat.ID, "Could not build the agenda right now.")
			}
			return b.sendText(msg.Chat.ID, text)
		})
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "👋 <b>taskcal</b> keeps your tasks and calendar in reach.\n\n" +
		"• /link &lt;code&gt; — connect this chat to your account\n" +
		"• /tasks — open tasks with buttons to complete them\n" +
		"• /done &lt;id&gt; — toggle a task by id or id prefix\n" +
		"• /agenda — today's events and due tasks\n" +
		"• /unlink — disconnect this chat"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return b.sendText(msg.Chat.ID, "Send the code from the app: <code>/link ABCD2345</code>")
	}
	user, err := b.auth.LinkTelegram(ctx, code, msg.Chat.ID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return b.sendText(msg.Chat.ID, "That code is unknown or has expired. Create a new one in the app.")
		}
		return err
	}
	logger.Info("telegram chat linked", "user", user.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Linked to <b>%s</b>. Reset codes and daily agendas will arrive here.", escape(user.Email)))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.auth.UnlinkTelegram(ctx, msg.Chat.ID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return b.sendText(msg.Chat.ID, "This chat is not linked.")
		}
		return err
	}
	return b.sendText(msg.Chat.ID, "Chat unlinked.")
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give me the task id: <code>/done 3f2a9c1b</code>")
	}
	return b.withUser(ctx, msg.Chat.ID, func(user *model.User) error {
		task, err := b.taskSvc.FindByPrefix(ctx, user.ID, args)
		if err != nil {
			return b.sendText(msg.Chat.ID, escape(apperr.UserMessage(err)))
		}
		return b.toggleAndReport(ctx, msg.Chat.ID, user, task.ID)
	})
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.Message == nil || !strings.HasPrefix(cb.Data, cbDonePrefix) {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		logger.Warn("callback ack", "error", err)
	}
	chatID := cb.Message.Chat.ID
	return b.withUser(ctx, chatID, func(user *model.User) error {
		return b.toggleAndReport(ctx, chatID, user, strings.TrimPrefix(cb.Data, cbDonePrefix))
	})
}

func (b *Bot) toggleAndReport(ctx context.Context, chatID int64, user *model.User, taskID string) error {
	task, err := b.taskSvc.Toggle(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(chatID, escape(apperr.UserMessage(err)))
	}
	if task.Status == model.TaskCompleted {
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» done.", escape(normalizeTitle(task.Title))))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ «%s» reopened.", escape(normalizeTitle(task.Title))))
}

// withUser resolves the account linked to chatID, or tells the chat how to
// link one.
func (b *Bot) withUser(ctx context.Context, chatID int64, fn func(*model.User) error) error {
	user, err := b.auth.UserByChat(ctx, chatID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return b.sendText(chatID, notLinkedMsg)
		}
		return err
	}
	return fn(user)
}

// SendDailyAgendas sends a summary to every linked user.
func (b *Bot) SendDailyAgendas(ctx context.Context) error {
	users, err := b.users.ListWithTelegram(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.agendaSvc.DailySummary(ctx, user.ID, now)
		if err != nil {
			logger.Error("build agenda", "user", user.ID, "error", err)
			continue
		}
		if err := b.sendText(*user.TelegramChatID, text); err != nil {
			logger.Error("send agenda", "user", user.ID, "error", err)
		}
	}
	return nil
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	tasks, err := b.taskSvc.List(ctx, user.ID)
	if err != nil {
		return b.sendText(chatID, escape(apperr.UserMessage(err)))
	}

	now := b.now()
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	builder.WriteString("Tap a button to mark a task done.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		if task.Status != model.TaskPending {
			continue
		}
		builder.WriteString(formatTask(task, now))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s", shortTitle(task.Title, 28)), cbDonePrefix+task.ID),
		))
	}
	if len(buttons) == 0 {
		return b.sendText(chatID, "You have no open tasks. 🎉")
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func formatTask(task model.Task, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			icon = iconOverdue
		} else if d.Sub(now) <= 48*time.Hour {
			icon = iconDue
		}
	}
	if task.Priority == model.PriorityHigh && icon == iconDefault {
		icon = iconHigh
	}
	b.WriteString(fmt.Sprintf("%s <code>%s</code> %s\n", icon, shortID(task.ID), escape(normalizeTitle(task.Title))))
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s — <b>overdue</b>\n", d.Format("2006-01-02")))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s\n", d.Format("2006-01-02")))
		}
	}
	if task.Description != nil && *task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(*task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
