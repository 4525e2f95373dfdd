package gemini

import "time"

// Wire types for the generateContent contract. Field names follow the
// provider's JSON exactly.

type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type GenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	Temperature        float64  `json:"temperature,omitempty"`
	TopP               float64  `json:"topP,omitempty"`
	TopK               int      `json:"topK,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
}

type Response struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

type Candidate struct {
	FinishReason string  `json:"finishReason,omitempty"`
	Content      Content `json:"content"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// RetryPolicy bounds the retry loop for one call site. The constants
// differ per operation kind and are configured, not unified.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// Statuses retried in addition to 503. Transport-level errors are
	// always retried.
	ExtraRetryStatuses []int
}

// GeneratePolicy is the default retry policy for image generation.
func GeneratePolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 15, BaseDelay: time.Second, Multiplier: 1.5, MaxDelay: 10 * time.Second}
}

// EditPolicy is the default retry policy for image edits.
func EditPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, Multiplier: 1.5, MaxDelay: 10 * time.Second}
}

// VisionPolicy is the default retry policy for analysis and
// reverse-prompt calls, which also retry rate limits and 5xx.
func VisionPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		Multiplier:         2.0,
		MaxDelay:           5 * time.Second,
		ExtraRetryStatuses: []int{429, 500, 502, 504},
	}
}
