package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"cronward/pkg/logx"
)

// TelegramSink delivers notifications to one Telegram chat.
//
// Endpoint form: telegram://<bot_token>@<chat_id>
// where chat_id may be negative for groups/channels.
type TelegramSink struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func severityPrefix(s Severity) string {
	switch s {
	case SeveritySuccess:
		return "✅ "
	case SeverityWarning:
		return "⚠️ "
	case SeverityFailure:
		return "🚨 "
	default:
		return "ℹ️ "
	}
}

// NewTelegramSink constructs the sink. Token validation happens against
// the Telegram API, so construction requires network access.
func NewTelegramSink(token string, chatID int64, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramSink{bot: b, chatID: chatID, log: log}, nil
}

func (s *TelegramSink) Endpoint() string {
	return "telegram://***@" + strconv.FormatInt(s.chatID, 10)
}

func (s *TelegramSink) Send(ctx context.Context, title, body string, severity Severity) bool {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return false
		default:
		}
	}

	text := severityPrefix(severity) + title
	if body != "" {
		text += "\n\n" + body
	}

	// Telegram caps messages at 4096 chars; the dispatcher already
	// truncates output, so a single hard cap here is enough.
	const telegramTextLimit = 4096
	if len(text) > telegramTextLimit {
		text = text[:telegramTextLimit]
	}

	_, err := s.bot.Send(tele.ChatID(s.chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		s.log.Warn("telegram send failed", logx.Int64("chat_id", s.chatID), logx.Err(err))
		return false
	}
	return true
}

// parseTelegramEndpoint splits "telegram://<token>@<chat_id>". The token
// itself contains a colon, so the split is on the last '@'.
func parseTelegramEndpoint(raw string) (token string, chatID int64, err error) {
	rest := strings.TrimPrefix(raw, "telegram://")
	at := strings.LastIndex(rest, "@")
	if at <= 0 || at == len(rest)-1 {
		return "", 0, fmt.Errorf("telegram endpoint must look like telegram://<token>@<chat_id>")
	}
	token = rest[:at]
	chatID, err = strconv.ParseInt(rest[at+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("telegram endpoint chat id: %w", err)
	}
	return token, chatID, nil
}
