package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func Load() (*Config, error) {
	tempDir := os.Getenv("PIXELBOT_TEMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}

	geminiConfig, err := loadGeminiConfig()
	if err != nil {
		return nil, err
	}

	botConfig, err := loadBotConfig()
	if err != nil {
		return nil, err
	}

	translateConfig := loadTranslateConfig()
	multiBot := loadMultiBotConfig()
	storageConfig := loadStorageConfig()
	pointsConfig := loadPointsConfig()
	sessionConfig := loadSessionConfig()
	retryConfig := loadRetryConfig()

	commands, messages, err := loadWords(os.Getenv("PIXELBOT_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		TempDir:   tempDir,
		Timezone:  timezone,
		Gemini:    geminiConfig,
		Translate: translateConfig,
		Bot:       botConfig,
		Bots:      multiBot,
		Storage:   storageConfig,
		Points:    pointsConfig,
		Session:   sessionConfig,
		Retry:     retryConfig,
		Commands:  commands,
		Messages:  messages,
	}, nil
}

func loadGeminiConfig() (GeminiConfig, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash-exp-image-generation"
	}

	baseURL := os.Getenv("GEMINI_BASE_URL")

	proxyService := os.Getenv("GEMINI_PROXY_SERVICE_URL")
	proxyURL := os.Getenv("GEMINI_PROXY_URL")
	if proxyService != "" && proxyURL != "" {
		// proxy service wins; the raw proxy is ignored downstream anyway
		proxyURL = ""
	}

	return GeminiConfig{
		APIKey:          apiKey,
		Model:           model,
		BaseURL:         baseURL,
		ProxyServiceURL: proxyService,
		ProxyURL:        proxyURL,
	}, nil
}

func loadTranslateConfig() TranslateConfig {
	apiKey := os.Getenv("TRANSLATE_API_KEY")
	baseURL := os.Getenv("TRANSLATE_BASE_URL")

	model := os.Getenv("TRANSLATE_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return TranslateConfig{
		Enabled: os.Getenv("TRANSLATE_ENABLED") != "false",
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
	}
}

func loadBotConfig() (BotConfig, error) {
	provider := os.Getenv("BOT_PROVIDER")
	if provider == "" {
		provider = "telegram"
	}

	var token string
	switch provider {
	case "telegram":
		token = os.Getenv("TELEGRAM_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("TELEGRAM_TOKEN not set")
		}
	case "discord":
		token = os.Getenv("DISCORD_TOKEN")
		if token == "" {
			return BotConfig{}, fmt.Errorf("DISCORD_TOKEN not set")
		}
	default:
		return BotConfig{}, fmt.Errorf("unknown BOT_PROVIDER: %s", provider)
	}

	return BotConfig{
		Provider: provider,
		Token:    token,
	}, nil
}

func loadMultiBotConfig() MultiBot {
	telegramToken := os.Getenv("TELEGRAM_TOKEN")
	discordToken := os.Getenv("DISCORD_TOKEN")

	return MultiBot{
		Telegram: BotInstance{
			Enabled: telegramToken != "",
			Token:   telegramToken,
		},
		Discord: BotInstance{
			Enabled: discordToken != "",
			Token:   discordToken,
		},
	}
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "pixelbot-images"
	}

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
	}
}

func loadPointsConfig() PointsConfig {
	enabled := os.Getenv("POINTS_ENABLED") == "true"

	return PointsConfig{
		Enabled:      enabled,
		GenerateCost: envInt("POINTS_GENERATE_COST", 0),
		EditCost:     envInt("POINTS_EDIT_COST", 0),
		AnalyzeCost:  envInt("POINTS_ANALYZE_COST", 0),
		ReverseCost:  envInt("POINTS_REVERSE_COST", 0),
	}
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		ConversationExpiry: envSeconds("SESSION_EXPIRY_SECONDS", 180),
		MaxMessages:        envInt("SESSION_MAX_MESSAGES", 10),
		ImageCacheTimeout:  envSeconds("IMAGE_CACHE_SECONDS", 300),
		WaitTimeout:        envSeconds("WAIT_TIMEOUT_SECONDS", 180),
		FollowUpTimeout:    envSeconds("FOLLOWUP_TIMEOUT_SECONDS", 180),
		TempFileMaxAge:     envSeconds("TEMP_FILE_MAX_AGE_SECONDS", 3600),
	}
}

func loadRetryConfig() RetryConfig {
	return RetryConfig{
		GenerateMaxRetries: envInt("RETRY_GENERATE_MAX", 15),
		EditMaxRetries:     envInt("RETRY_EDIT_MAX", 10),
		VisionMaxRetries:   envInt("RETRY_VISION_MAX", 3),
	}
}

func envInt(name string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envSeconds(name string, fallback int) time.Duration {
	return time.Duration(envInt(name, fallback)) * time.Second
}
