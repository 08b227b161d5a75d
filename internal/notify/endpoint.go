package notify

import (
	"fmt"
	"strings"

	"cronward/pkg/logx"
)

// BuildSinks turns endpoint URLs into concrete sinks.
//
// Supported forms:
//   - telegram://<bot_token>@<chat_id>
//   - http://… and https://… (JSON webhook)
//
// An unknown scheme is an error: endpoints come from validated config, so
// a typo should fail loudly at load time rather than silently dropping
// notifications later.
func BuildSinks(endpoints []string, log logx.Logger) ([]Sink, error) {
	sinks := make([]Sink, 0, len(endpoints))
	for _, raw := range endpoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		sink, err := buildSink(raw, log)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", redactEndpoint(raw), err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func buildSink(raw string, log logx.Logger) (Sink, error) {
	switch {
	case strings.HasPrefix(raw, "telegram://"):
		token, chatID, err := parseTelegramEndpoint(raw)
		if err != nil {
			return nil, err
		}
		return NewTelegramSink(token, chatID, log)
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return NewWebhookSink(raw, log)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme")
	}
}

// ValidateEndpoint checks an endpoint URL's shape without constructing a
// sink (and without touching the network). Used by config validation.
func ValidateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return fmt.Errorf("endpoint is empty")
	case strings.HasPrefix(raw, "telegram://"):
		_, _, err := parseTelegramEndpoint(raw)
		return err
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return nil
	default:
		return fmt.Errorf("unsupported endpoint scheme")
	}
}

// redactEndpoint hides credentials (telegram bot tokens) in error text.
func redactEndpoint(raw string) string {
	if !strings.HasPrefix(raw, "telegram://") {
		return raw
	}
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return "telegram://***"
	}
	return "telegram://***" + raw[at:]
}
