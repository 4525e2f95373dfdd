package engine

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pixelbot/pixelbot/internal/logger"
	"github.com/pixelbot/pixelbot/internal/pending"
)

const (
	defaultAnalysisQuestion = "What is in this image? Describe it in detail."
	defaultMergePrompt      = "Combine these two images into one natural, coherent picture."
	mergeFusionPrefix       = "Blend these two images into a single coherent picture. "
	reverseInstruction      = "Describe this image as a detailed text-to-image generation prompt. Reply with the prompt only."
	followUpReminder        = "\n\nYou can ask one follow-up question about this image within the next 3 minutes."
	followUpExpiredMessage  = "There's no recent analysis to follow up on. Send an image for analysis first."
	editSessionGuidance     = "An edit session has started. Keep sending edit commands to refine this image; say the end-session command when you're done."
)

// HandleText dispatches a text message over the configured command
// words. Returns false when the message was consumed, true to let it
// fall through to other handlers.
func (e *Engine) HandleText(ctx context.Context, msg Message) bool {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return true
	}

	if _, ok := match(text, e.cfg.Commands.EndSession); ok {
		e.EndSession(msg.SessionKey)
		e.reply(msg.ChatID, e.cfg.Messages.SessionEnded)
		return false
	}

	if _, ok := match(text, e.cfg.Commands.TranslateOn); ok {
		if e.translator != nil {
			e.translator.SetEnabled(msg.SessionKey, true)
		}
		e.reply(msg.ChatID, "Prompt translation is on. I'll translate your prompts to English before drawing.")
		return false
	}
	if _, ok := match(text, e.cfg.Commands.TranslateOff); ok {
		if e.translator != nil {
			e.translator.SetEnabled(msg.SessionKey, false)
		}
		e.reply(msg.ChatID, "Prompt translation is off. Your prompts will be sent as written.")
		return false
	}

	if rest, ok := match(text, e.cfg.Commands.FollowUp); ok {
		return e.handleFollowUp(ctx, msg, rest)
	}

	if rest, ok := match(text, e.cfg.Commands.Reference); ok {
		if rest == "" {
			e.reply(msg.ChatID, "Tell me how to edit it, e.g. \""+first(e.cfg.Commands.Reference)+"make it watercolor\".")
			return false
		}
		if !e.guardAPIKey(msg) {
			return false
		}
		e.pending.Set(msg.SessionKey, pending.KindReferenceEdit, rest, nil)
		e.reply(msg.ChatID, e.cfg.Messages.AwaitReferenceImage)
		return false
	}

	if rest, ok := match(text, e.cfg.Commands.Merge); ok {
		if !e.guardAPIKey(msg) {
			return false
		}
		prompt := rest
		if prompt == "" {
			prompt = defaultMergePrompt
		}
		e.pending.Set(msg.SessionKey, pending.KindMergeFirst, prompt, nil)
		e.reply(msg.ChatID, e.cfg.Messages.AwaitMergeFirst)
		return false
	}

	if _, ok := match(text, e.cfg.Commands.Reverse); ok {
		if !e.guardAPIKey(msg) {
			return false
		}
		e.pending.Set(msg.SessionKey, pending.KindReversePrompt, "", nil)
		e.reply(msg.ChatID, e.cfg.Messages.AwaitReverseImage)
		return false
	}

	if rest, ok := match(text, e.cfg.Commands.Analyze); ok {
		if !e.guardAPIKey(msg) {
			return false
		}
		question := rest
		if question == "" {
			question = defaultAnalysisQuestion
		}
		e.pending.Set(msg.SessionKey, pending.KindAnalysis, question, nil)
		e.reply(msg.ChatID, e.cfg.Messages.AwaitAnalysisImage)
		return false
	}

	if rest, ok := match(text, e.cfg.Commands.Edit); ok {
		if rest == "" {
			e.reply(msg.ChatID, "Tell me what to change, e.g. \""+first(e.cfg.Commands.Edit)+"make the sky pink\".")
			return false
		}
		return e.handleEditCommand(ctx, msg, rest)
	}

	if rest, ok := match(text, e.cfg.Commands.Generate); ok {
		if rest == "" {
			e.reply(msg.ChatID, "Tell me what to draw, e.g. \""+first(e.cfg.Commands.Generate)+"a red bicycle\".")
			return false
		}
		return e.handleGenerateCommand(ctx, msg, rest)
	}

	return true
}

func (e *Engine) handleGenerateCommand(ctx context.Context, msg Message, prompt string) bool {
	if !e.guardAPIKey(msg) {
		return false
	}
	if !e.charge(msg, "generate", e.cfg.Points.GenerateCost) {
		return false
	}
	prompt = e.maybeTranslate(ctx, msg, prompt)
	e.runGenerate(ctx, msg, prompt)
	return false
}

func (e *Engine) handleEditCommand(ctx context.Context, msg Message, prompt string) bool {
	if !e.guardAPIKey(msg) {
		return false
	}

	image, ok := e.recallRecent(msg)
	if !ok {
		e.reply(msg.ChatID, e.cfg.Messages.NoRecentImage)
		return false
	}

	if !e.charge(msg, "edit", e.cfg.Points.EditCost) {
		return false
	}
	prompt = e.maybeTranslate(ctx, msg, prompt)
	e.runEdit(ctx, msg, prompt, image)
	return false
}

func (e *Engine) handleFollowUp(ctx context.Context, msg Message, question string) bool {
	if !e.guardAPIKey(msg) {
		return false
	}
	if question == "" {
		question = defaultAnalysisQuestion
	}

	mem, ok := e.analysis.Get(msg.SessionKey)
	if !ok {
		e.reply(msg.ChatID, followUpExpiredMessage)
		return false
	}

	if !e.charge(msg, "analyze", e.cfg.Points.AnalyzeCost) {
		return false
	}
	e.runAnalysis(ctx, msg, question, mem.image)
	return false
}

// recallRecent looks up the latest image under the session key, then
// under the raw sender id (the group-chat duplicate).
func (e *Engine) recallRecent(msg Message) ([]byte, bool) {
	if data, ok := e.cache.Recall(msg.SessionKey); ok {
		return data, true
	}
	if msg.SenderID != "" && msg.SenderID != msg.SessionKey {
		if data, ok := e.cache.Recall(msg.SenderID); ok {
			return data, true
		}
	}
	return nil, false
}

// match reports whether text triggers one of the command words, and
// returns the remainder after the matched prefix.
func match(text string, words []string) (string, bool) {
	for _, w := range words {
		if rest, ok := foldPrefix(text, w); ok {
			return strings.TrimSpace(rest), true
		}
		if strings.EqualFold(text, strings.TrimSpace(w)) {
			return "", true
		}
	}
	return "", false
}

// foldPrefix does a case-insensitive prefix match rune by rune and slices
// the remainder off the original text. Folding via strings.ToLower can
// change a rune's byte length, so byte offsets computed on a lowered copy
// are not safe against the original.
func foldPrefix(text, word string) (string, bool) {
	rest := text
	for _, wr := range word {
		r, size := utf8.DecodeRuneInString(rest)
		if size == 0 || unicode.ToLower(r) != unicode.ToLower(wr) {
			return "", false
		}
		rest = rest[size:]
	}
	return rest, true
}

func first(words []string) string {
	if len(words) == 0 {
		logger.Warn("empty command word list")
		return ""
	}
	return words[0]
}
