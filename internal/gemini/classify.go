package gemini

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pixelbot/pixelbot/internal/logger"
)

type OutcomeKind int

const (
	// Success carries ordered (image, associated text) pairs and/or a
	// final text.
	Success OutcomeKind = iota
	// Blocked means the prompt itself was rejected (promptFeedback).
	Blocked
	// Refused means generation stopped for a content reason
	// (SAFETY, IMAGE_SAFETY, RECITATION).
	Refused
	// Empty means a well-formed response with nothing usable in it.
	Empty
	// OtherFailure covers any other non-STOP finish reason.
	OtherFailure
)

// ImageText is one generated image with the text that preceded it.
type ImageText struct {
	Image []byte
	Text  string
}

type Outcome struct {
	Kind      OutcomeKind
	Reason    string
	Pairs     []ImageText
	FinalText string
}

// Refusal finish reasons mapped to user-facing messages.
var refusalMessages = map[string]string{
	"SAFETY":       "Your request was blocked by the content safety system. Please adjust your prompt and try again.",
	"IMAGE_SAFETY": "The generated image was rejected by the content safety system. Please adjust your prompt and try again.",
	"RECITATION":   "The request was flagged for repeating or reciting existing content. Please rephrase and try again.",
}

// Classify decodes a raw 200-status response body into one outcome.
func Classify(body []byte) Outcome {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		logger.Error("provider response undecodable", "error", err)
		return Outcome{Kind: Empty, Reason: "undecodable response"}
	}
	return ClassifyResponse(&resp)
}

func ClassifyResponse(resp *Response) Outcome {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return Outcome{Kind: Blocked, Reason: resp.PromptFeedback.BlockReason}
		}
		return Outcome{Kind: Empty, Reason: "no candidates"}
	}

	first := resp.Candidates[0]
	reason := first.FinishReason
	if _, known := refusalMessages[reason]; known {
		return Outcome{Kind: Refused, Reason: reason}
	}
	if reason != "" && reason != "STOP" {
		return Outcome{Kind: OtherFailure, Reason: reason}
	}

	// Walk parts in order: each text part overwrites the running buffer,
	// each inline image closes an (image, text) pair and resets it. The
	// last text seen is kept separately as the final text.
	var (
		pairs       []ImageText
		currentText string
		finalText   string
	)
	for _, part := range first.Content.Parts {
		if text := strings.TrimSpace(part.Text); text != "" {
			currentText = text
			finalText = text
			continue
		}
		if part.InlineData != nil && part.InlineData.Data != "" {
			img, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				logger.Error("inline image undecodable", "error", err)
				continue
			}
			pairs = append(pairs, ImageText{Image: img, Text: currentText})
			currentText = ""
		}
	}

	if len(pairs) == 0 && finalText == "" {
		return Outcome{Kind: Empty, Reason: "no usable parts"}
	}
	return Outcome{Kind: Success, Pairs: pairs, FinalText: finalText}
}

// RefusalMessage returns the fixed user-facing message for a refusal or
// blocked outcome.
func RefusalMessage(o Outcome) string {
	switch o.Kind {
	case Refused:
		if msg, ok := refusalMessages[o.Reason]; ok {
			return msg
		}
		return "The request was refused. Please adjust your prompt and try again."
	case Blocked:
		return "Your prompt was rejected: " + o.Reason
	case OtherFailure:
		return "Generation failed, reason: " + o.Reason
	default:
		return "Generation failed, please try again later."
	}
}

// LocalizeRefusal rewrites known provider refusal phrasings into fixed
// user-facing messages. Unmatched text passes through unchanged.
func LocalizeRefusal(text string) string {
	if strings.Contains(text, "SAFETY") {
		return refusalMessages["SAFETY"]
	}
	if strings.Contains(text, "finishReason") {
		return "Sorry, the image could not be processed. Try a different description or try again later."
	}

	if strings.Contains(text, "I'm unable to create this image") {
		switch {
		case strings.Contains(text, "sexually suggestive"):
			return "Sorry, I can't create this image. Sexually suggestive content and harmful stereotypes can't be generated. Please try a different description."
		case strings.Contains(text, "harmful"), strings.Contains(text, "dangerous"):
			return "Sorry, I can't create this image. Potentially harmful or dangerous content can't be generated. Please try a different description."
		case strings.Contains(text, "violent"):
			return "Sorry, I can't create this image. Violent or graphic content can't be generated. Please try a different description."
		default:
			return "Sorry, I can't create this image. Please try a different description."
		}
	}

	if strings.Contains(text, "cannot generate") || strings.Contains(text, "can't generate") {
		return "Sorry, I can't generate an image matching that description. Please try another one."
	}
	if strings.Contains(text, "against our content policy") {
		return "Sorry, that request goes against the content policy. Please try a different description."
	}

	return text
}
