package config

import "time"

type Config struct {
	TempDir  string
	Timezone string

	Gemini    GeminiConfig
	Translate TranslateConfig
	Bot       BotConfig
	Bots      MultiBot
	Storage   StorageConfig
	Points    PointsConfig
	Session   SessionConfig
	Retry     RetryConfig
	Commands  Commands
	Messages  Messages
}

// GeminiConfig selects the image-generation endpoint. ProxyServiceURL
// replaces the provider base URL wholesale; ProxyURL is an HTTP-level
// proxy honored only when no proxy service is set.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	ProxyServiceURL string
	ProxyURL        string
}

type TranslateConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
}

type BotConfig struct {
	Provider string
	Token    string
}

type BotInstance struct {
	Enabled bool
	Token   string
}

type MultiBot struct {
	Telegram BotInstance
	Discord  BotInstance
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// PointsConfig prices the costed operations. Zero cost disables
// charging for that operation.
type PointsConfig struct {
	Enabled      bool
	GenerateCost int
	EditCost     int
	AnalyzeCost  int
	ReverseCost  int
}

// SessionConfig bounds per-user state.
type SessionConfig struct {
	ConversationExpiry time.Duration
	MaxMessages        int
	ImageCacheTimeout  time.Duration
	WaitTimeout        time.Duration
	FollowUpTimeout    time.Duration
	TempFileMaxAge     time.Duration
}

// RetryConfig carries the per-call-site retry bounds. The call sites
// deliberately differ; see the provider client for the backoff shape.
type RetryConfig struct {
	GenerateMaxRetries int
	EditMaxRetries     int
	VisionMaxRetries   int
}
