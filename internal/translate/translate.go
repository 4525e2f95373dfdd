// Package translate turns non-English prompts into English before they
// reach the image provider. Best effort: every failure path returns the
// original prompt so translation can never block a flow.
package translate

import (
	"context"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pixelbot/pixelbot/internal/expiry"
	"github.com/pixelbot/pixelbot/internal/logger"
)

const (
	requestTimeout = 10 * time.Second

	systemPrompt = "You are a professional translator. Translate the user's " +
		"prompt into English for an AI image generator. Keep the intent and " +
		"style of the original. Reply with the translation only, no " +
		"explanations or extra content."
)

type Config struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
}

// Translator wraps an OpenAI-compatible chat-completions endpoint with a
// per-user on/off overlay above the global switch.
type Translator struct {
	cfg      Config
	client   openaigo.Client
	ready    bool
	userPref *expiry.Store[bool]
}

func New(cfg Config) *Translator {
	t := &Translator{
		cfg:      cfg,
		userPref: expiry.NewStore[bool](0, nil),
	}
	if cfg.APIKey != "" && cfg.BaseURL != "" && cfg.Model != "" {
		t.client = openaigo.NewClient(
			option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(requestTimeout),
		)
		t.ready = true
	}
	return t
}

// SetEnabled records a per-user translation preference.
func (t *Translator) SetEnabled(userID string, enabled bool) {
	t.userPref.Put(userID, enabled)
}

// EnabledFor reports whether prompts from this user should be translated.
func (t *Translator) EnabledFor(userID string) bool {
	if !t.cfg.Enabled {
		return false
	}
	if pref, ok := t.userPref.Get(userID); ok {
		return pref
	}
	return true
}

// Translate returns the English form of the prompt, or the prompt
// unchanged when it is already mostly English, the translator is not
// configured, or the call fails.
func (t *Translator) Translate(ctx context.Context, prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return prompt
	}
	if mostlyEnglish(prompt) {
		return prompt
	}
	if !t.ready {
		logger.Warn("translation not configured, using original prompt")
		return prompt
	}

	resp, err := t.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(t.cfg.Model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(systemPrompt),
			openaigo.UserMessage("Translate this prompt into English for AI image generation:\n\n" + prompt),
		},
	})
	if err != nil {
		logger.Error("translation failed, using original prompt", "error", err)
		return prompt
	}
	if len(resp.Choices) == 0 {
		return prompt
	}

	translated := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"'`))
	if translated == "" {
		return prompt
	}

	logger.Info("prompt translated", "from", prompt, "to", translated)
	return translated
}

// mostlyEnglish reports whether more than 70% of the non-space characters
// are ASCII letters.
func mostlyEnglish(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	letters := 0
	total := 0
	for _, r := range trimmed {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if total == 0 {
		return false
	}
	return float64(letters)/float64(total) > 0.7
}
