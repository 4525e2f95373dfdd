package bot

import (
	"fmt"

	"github.com/pixelbot/pixelbot/internal/engine"
)

func New(cfg Config, eng *engine.Engine) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		return newTelegram(cfg.Token, eng)
	case "discord":
		return newDiscord(cfg.Token, eng)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}
