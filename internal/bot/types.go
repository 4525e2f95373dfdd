package bot

import "context"

// Bot is a chat transport: it delivers inbound events to the engine and
// exposes the reply primitives the engine needs. Chat ids are strings at
// this boundary, prefixed with the provider name ("telegram:123"), so
// several transports can share one engine without id collisions; each
// implementation strips its prefix and converts to its native id type.
type Bot interface {
	Start(ctx context.Context) error
	Send(chatID string, message string) error
	SendImage(chatID string, data []byte) error
}

type Config struct {
	Provider string
	Token    string
}

// maxImageSize caps inbound attachment downloads (20MB).
const maxImageSize = 20 * 1024 * 1024
