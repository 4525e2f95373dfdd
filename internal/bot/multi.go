package bot

import (
	"context"
	"fmt"
	"strings"
)

// multi fans one engine out over several transports. Each transport
// prefixes its chat ids with its provider name ("telegram:123"), so a
// reply can be routed back to the transport the message arrived on.
type multi struct {
	bots map[string]Bot
}

// NewMulti wraps transports keyed by provider name into a single Bot.
func NewMulti(bots map[string]Bot) Bot {
	return &multi{bots: bots}
}

// Start runs every transport and returns the first one's error. The
// caller cancels ctx to bring the rest down.
func (m *multi) Start(ctx context.Context) error {
	errc := make(chan error, len(m.bots))
	for name, b := range m.bots {
		go func(name string, b Bot) {
			errc <- fmt.Errorf("%s: %w", name, b.Start(ctx))
		}(name, b)
	}
	return <-errc
}

func (m *multi) Send(chatID string, message string) error {
	b, err := m.route(chatID)
	if err != nil {
		return err
	}
	return b.Send(chatID, message)
}

func (m *multi) SendImage(chatID string, data []byte) error {
	b, err := m.route(chatID)
	if err != nil {
		return err
	}
	return b.SendImage(chatID, data)
}

func (m *multi) route(chatID string) (Bot, error) {
	provider, _, ok := strings.Cut(chatID, ":")
	if !ok {
		return nil, fmt.Errorf("chat id %q carries no provider prefix", chatID)
	}
	b, ok := m.bots[provider]
	if !ok {
		return nil, fmt.Errorf("no transport for provider %q", provider)
	}
	return b, nil
}
