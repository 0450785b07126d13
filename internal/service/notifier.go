package service

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskcal/internal/config"
	"taskcal/internal/logger"
	"taskcal/internal/model"
)

// Message is an out-of-band notice for one user.
type Message struct {
	Subject string
	Body    string
}

// Notifier delivers messages to a user over some side channel.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, msg Message) error
}

// MultiNotifier tries every channel and succeeds if at least one delivered.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, user *model.User, msg Message) error {
	var errs []error
	delivered := 0
	for _, n := range m {
		if err := n.Notify(ctx, user, msg); err != nil {
			if errors.Is(err, errChannelUnavailable) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		for _, err := range errs {
			logger.Warn("notification channel failed", "user", user.ID, "error", err)
		}
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("notify %s: no channel available", user.Email)
	}
	return fmt.Errorf("notify %s: %w", user.Email, errors.Join(errs...))
}

// errChannelUnavailable means the channel does not apply to this user, for
// example Telegram for an unlinked account.
var errChannelUnavailable = errors.New("channel unavailable for user")

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailNotifier sends plain-text mail through an SMTP relay.
type MailNotifier struct {
	cfg      config.SMTPConfig
	sendMail sendMailFunc
}

func NewMailNotifier(cfg config.SMTPConfig) *MailNotifier {
	return &MailNotifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *MailNotifier) Notify(_ context.Context, user *model.User, msg Message) error {
	if n.cfg.Host == "" {
		return errChannelUnavailable
	}

	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, user.Email, msg.Subject, msg.Body)

	addr := fmt.Sprintf("%s:%s", n.cfg.Host, n.cfg.Port)
	if err := n.sendMail(addr, auth, from, []string{user.Email}, []byte(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// TelegramSender is the part of the bot API used for delivery.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier messages users who linked a chat.
type TelegramNotifier struct {
	api TelegramSender
}

func NewTelegramNotifier(api TelegramSender) *TelegramNotifier {
	return &TelegramNotifier{api: api}
}

func (n *TelegramNotifier) Notify(_ context.Context, user *model.User, msg Message) error {
	if n.api == nil || user.TelegramChatID == nil {
		return errChannelUnavailable
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(*user.TelegramChatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// LogNotifier writes messages to the log. It stands in for real channels
// during local development.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, user *model.User, msg Message) error {
	logger.Info("notification", "to", user.Email, "subject", msg.Subject, "body", msg.Body)
	return nil
}
