package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pixelbot/pixelbot/internal/bot"
	"github.com/pixelbot/pixelbot/internal/config"
	"github.com/pixelbot/pixelbot/internal/conversation"
	"github.com/pixelbot/pixelbot/internal/cron"
	"github.com/pixelbot/pixelbot/internal/engine"
	"github.com/pixelbot/pixelbot/internal/gemini"
	"github.com/pixelbot/pixelbot/internal/imagecache"
	"github.com/pixelbot/pixelbot/internal/logger"
	"github.com/pixelbot/pixelbot/internal/pending"
	"github.com/pixelbot/pixelbot/internal/storage"
	"github.com/pixelbot/pixelbot/internal/translate"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	// Without a key the bot still starts; the engine refuses drawing
	// commands with a configuration hint.
	var provider engine.Provider
	if cfg.Gemini.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, drawing commands will be refused")
	} else {
		client, err := gemini.NewClient(gemini.Config{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			BaseURL:         cfg.Gemini.BaseURL,
			ProxyServiceURL: cfg.Gemini.ProxyServiceURL,
			ProxyURL:        cfg.Gemini.ProxyURL,
		})
		if err != nil {
			logger.Fatal("failed to create provider client", "error", err)
		}
		provider = client
	}

	translator := translate.New(translate.Config{
		Enabled: cfg.Translate.Enabled,
		APIKey:  cfg.Translate.APIKey,
		BaseURL: cfg.Translate.BaseURL,
		Model:   cfg.Translate.Model,
	})

	// minio archive (optional)
	var archiver imagecache.Archiver
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Error("failed to create storage client", "error", err)
		} else {
			initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := client.Init(initCtx); err != nil {
				logger.Error("failed to init archive bucket", "error", err)
			} else {
				archiver = client
				logger.Info("image archive enabled", "endpoint", cfg.Storage.Endpoint)
			}
			cancel()
		}
	}

	cache, err := imagecache.New(cfg.Session.ImageCacheTimeout, cfg.TempDir, nil, archiver)
	if err != nil {
		logger.Fatal("failed to create image cache", "error", err)
	}

	conversations := conversation.NewManager(cfg.Session.ConversationExpiry, cfg.Session.MaxMessages, nil)

	waiting := pending.NewRegistry(pending.Timeouts{
		ReferenceEdit: cfg.Session.WaitTimeout,
		Merge:         cfg.Session.WaitTimeout,
		ReversePrompt: cfg.Session.WaitTimeout,
		Analysis:      cfg.Session.WaitTimeout,
	}, nil)

	generatePolicy := gemini.GeneratePolicy()
	generatePolicy.MaxRetries = cfg.Retry.GenerateMaxRetries
	editPolicy := gemini.EditPolicy()
	editPolicy.MaxRetries = cfg.Retry.EditMaxRetries
	visionPolicy := gemini.VisionPolicy()
	visionPolicy.MaxRetries = cfg.Retry.VisionMaxRetries

	eng := engine.New(engine.Config{
		Commands: cfg.Commands,
		Messages: cfg.Messages,
		Points:   cfg.Points,
		Policies: engine.Policies{
			Generate: generatePolicy,
			Edit:     editPolicy,
			Vision:   visionPolicy,
		},
		FollowUpTimeout: cfg.Session.FollowUpTimeout,
		APIKeyPresent:   cfg.Gemini.APIKey != "",
	}, engine.Deps{
		Provider:      provider,
		Conversations: conversations,
		Cache:         cache,
		Pending:       waiting,
		Translator:    translator,
	})

	b, err := buildBot(cfg, eng)
	if err != nil {
		logger.Fatal("failed to create bot", "error", err)
	}
	eng.SetSender(b)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	scheduler := cron.NewScheduler(loc)
	if err := scheduler.Add("@every 5m", "state sweep", func() {
		conversations.Sweep()
		cache.Sweep()
		waiting.Sweep()
		eng.SweepAnalysis()
	}); err != nil {
		logger.Fatal("failed to register sweep job", "error", err)
	}
	if err := scheduler.Add("@every 1h", "temp file reap", func() {
		cache.ReapTempFiles(cfg.Session.TempFileMaxAge)
	}); err != nil {
		logger.Fatal("failed to register reap job", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		logger.Info("shutting down", "signal", s)
		cancel()
	}()

	logger.Info("pixelbot started",
		"provider", cfg.Bot.Provider,
		"model", cfg.Gemini.Model,
		"translate", cfg.Translate.Enabled)

	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped", "error", err)
	}
}

// buildBot runs every transport that has a token configured. With both
// Telegram and Discord tokens set the engine is shared between them;
// otherwise the single configured provider runs alone.
func buildBot(cfg *config.Config, eng *engine.Engine) (bot.Bot, error) {
	if cfg.Bots.Telegram.Enabled && cfg.Bots.Discord.Enabled {
		tg, err := bot.New(bot.Config{Provider: "telegram", Token: cfg.Bots.Telegram.Token}, eng)
		if err != nil {
			return nil, err
		}
		dc, err := bot.New(bot.Config{Provider: "discord", Token: cfg.Bots.Discord.Token}, eng)
		if err != nil {
			return nil, err
		}
		logger.Info("running both telegram and discord transports")
		return bot.NewMulti(map[string]bot.Bot{"telegram": tg, "discord": dc}), nil
	}

	return bot.New(bot.Config{
		Provider: cfg.Bot.Provider,
		Token:    cfg.Bot.Token,
	}, eng)
}
