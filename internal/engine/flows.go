package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/pixelbot/pixelbot/internal/conversation"
	"github.com/pixelbot/pixelbot/internal/gemini"
	"github.com/pixelbot/pixelbot/internal/logger"
	"github.com/pixelbot/pixelbot/internal/pending"
)

// HandleImage routes an inbound image. Every image refreshes the recent
// image cache; when an expectation is pending it completes that flow,
// otherwise the image passes through.
func (e *Engine) HandleImage(ctx context.Context, msg Message) bool {
	data := msg.ImageData
	if len(data) == 0 && msg.ImagePath != "" {
		var err error
		data, err = os.ReadFile(msg.ImagePath)
		if err != nil {
			logger.Error("inbound image unreadable", "path", msg.ImagePath, "error", err)
			return true
		}
	}
	if len(data) == 0 {
		return true
	}

	e.cache.Remember(msg.SessionKey, msg.SenderID, data)

	exp, res := e.pending.Take(msg.SessionKey)
	switch res {
	case pending.TakeNone:
		return true
	case pending.TakeExpired:
		e.reply(msg.ChatID, e.cfg.Messages.WaitExpired)
		return false
	}

	switch exp.Kind {
	case pending.KindReferenceEdit:
		if !e.charge(msg, "edit", e.cfg.Points.EditCost) {
			return false
		}
		prompt := e.maybeTranslate(ctx, msg, exp.Prompt)
		e.runEditLike(ctx, msg, prompt, data, conversation.TypeReference, false, "refedit")

	case pending.KindMergeFirst:
		e.pending.Set(msg.SessionKey, pending.KindMergeSecond, exp.Prompt, data)
		e.reply(msg.ChatID, e.cfg.Messages.AwaitMergeSecond)

	case pending.KindMergeSecond:
		if !e.charge(msg, "edit", e.cfg.Points.EditCost) {
			return false
		}
		prompt := e.maybeTranslate(ctx, msg, exp.Prompt)
		e.runMerge(ctx, msg, prompt, exp.FirstImage, data)

	case pending.KindReversePrompt:
		if !e.charge(msg, "reverse", e.cfg.Points.ReverseCost) {
			return false
		}
		e.runReverse(ctx, msg, data)

	case pending.KindAnalysis:
		if !e.charge(msg, "analyze", e.cfg.Points.AnalyzeCost) {
			return false
		}
		e.runAnalysis(ctx, msg, exp.Prompt, data)
	}
	return false
}

func (e *Engine) runGenerate(ctx context.Context, msg Message, prompt string) {
	key := msg.SessionKey
	e.conv.GetOrReset(key, conversation.TypeGenerate, false)
	history := e.conv.History(key)

	opts := gemini.GenerateOptions()
	req := gemini.BuildRequest(prompt, nil, history, opts)
	payload, _, err := gemini.EnforceSizeLimit(req, prompt, nil, opts)
	if err != nil {
		logger.Error("request build failed", "error", err)
		e.reply(msg.ChatID, e.cfg.Messages.GenericFailure)
		return
	}

	body, err := e.provider.Do(ctx, payload, e.cfg.Policies.Generate)
	if err != nil {
		e.reply(msg.ChatID, e.describeCallError(err))
		return
	}
	e.finishImageTurn(ctx, msg, prompt, gemini.Classify(body), "generate")
}

func (e *Engine) runEdit(ctx context.Context, msg Message, prompt string, image []byte) {
	// Preserve the conversation id when an edit follows another flow.
	e.runEditLike(ctx, msg, prompt, image, conversation.TypeEdit, true, "edit")
}

func (e *Engine) runEditLike(ctx context.Context, msg Message, prompt string, image []byte, sessType conversation.SessionType, preserveID bool, prefix string) {
	key := msg.SessionKey
	e.conv.GetOrReset(key, sessType, preserveID)
	history := e.conv.History(key)
	firstTurn := len(history) == 0

	opts := gemini.EditOptions()
	req := gemini.BuildRequest(prompt, image, history, opts)
	payload, _, err := gemini.EnforceSizeLimit(req, prompt, image, opts)
	if err != nil {
		logger.Error("request build failed", "error", err)
		e.reply(msg.ChatID, e.cfg.Messages.GenericFailure)
		return
	}

	body, err := e.provider.Do(ctx, payload, e.cfg.Policies.Edit)
	if err != nil {
		e.reply(msg.ChatID, e.describeCallError(err))
		return
	}

	delivered := e.finishImageTurn(ctx, msg, prompt, gemini.Classify(body), prefix)
	if delivered && firstTurn {
		e.reply(msg.ChatID, editSessionGuidance)
	}
}

func (e *Engine) runMerge(ctx context.Context, msg Message, prompt string, first, second []byte) {
	key := msg.SessionKey
	e.conv.GetOrReset(key, conversation.TypeMerge, false)

	fused := mergeFusionPrefix + prompt
	req := gemini.BuildMergeRequest(fused, first, second, gemini.EditOptions())
	payload, err := json.Marshal(req)
	if err != nil {
		logger.Error("request build failed", "error", err)
		e.reply(msg.ChatID, e.cfg.Messages.GenericFailure)
		return
	}

	body, err := e.provider.Do(ctx, payload, e.cfg.Policies.Edit)
	if err != nil {
		e.reply(msg.ChatID, e.describeCallError(err))
		return
	}
	e.finishImageTurn(ctx, msg, fused, gemini.Classify(body), "merge")
}

func (e *Engine) runReverse(ctx context.Context, msg Message, image []byte) {
	req := gemini.BuildAnalyzeRequest(reverseInstruction, image, gemini.AnalyzeOptions())
	payload, err := json.Marshal(req)
	if err != nil {
		logger.Error("request build failed", "error", err)
		e.reply(msg.ChatID, e.cfg.Messages.GenericFailure)
		return
	}

	body, err := e.provider.Do(ctx, payload, e.cfg.Policies.Vision)
	if err != nil {
		e.reply(msg.ChatID, e.describeCallError(err))
		return
	}

	outcome := gemini.Classify(body)
	if outcome.Kind == gemini.Success && outcome.FinalText != "" {
		e.reply(msg.ChatID, outcome.FinalText)
		return
	}
	e.reply(msg.ChatID, gemini.RefusalMessage(outcome))
}

func (e *Engine) runAnalysis(ctx context.Context, msg Message, question string, image []byte) {
	key := msg.SessionKey
	e.conv.GetOrReset(key, conversation.TypeAnalysis, false)

	req := gemini.BuildAnalyzeRequest(question, image, gemini.AnalyzeOptions())
	payload, err := json.Marshal(req)
	if err != nil {
		logger.Error("request build failed", "error", err)
		e.reply(msg.ChatID, e.cfg.Messages.GenericFailure)
		return
	}

	body, err := e.provider.Do(ctx, payload, e.cfg.Policies.Vision)
	if err != nil {
		e.reply(msg.ChatID, e.describeCallError(err))
		return
	}

	outcome := gemini.Classify(body)
	if outcome.Kind != gemini.Success || outcome.FinalText == "" {
		e.reply(msg.ChatID, gemini.RefusalMessage(outcome))
		return
	}

	e.analysis.Put(key, analysisMemory{image: image})
	e.reply(msg.ChatID, outcome.FinalText+followUpReminder)
}

// finishImageTurn delivers a classified outcome and, on success with at
// least one image, records the turn in the conversation. Refused or
// text-only outcomes are reported to the user without becoming history.
func (e *Engine) finishImageTurn(ctx context.Context, msg Message, prompt string, outcome gemini.Outcome, prefix string) bool {
	if outcome.Kind != gemini.Success {
		e.reply(msg.ChatID, gemini.RefusalMessage(outcome))
		return false
	}
	if len(outcome.Pairs) == 0 {
		e.reply(msg.ChatID, gemini.LocalizeRefusal(outcome.FinalText))
		return false
	}

	var modelParts []conversation.Part
	lastText := ""
	for _, pair := range outcome.Pairs {
		path, err := e.cache.Persist(ctx, msg.SessionKey, pair.Image, prefix)
		if err != nil {
			logger.Error("image persist failed", "session", msg.SessionKey, "error", err)
		} else {
			modelParts = append(modelParts, conversation.ImageRefPart(path))
		}
		e.cache.Remember(msg.SessionKey, msg.SenderID, pair.Image)

		e.sendImage(msg.ChatID, pair.Image, path)
		if pair.Text != "" && pair.Text != lastText {
			e.reply(msg.ChatID, pair.Text)
			lastText = pair.Text
		}
	}
	if outcome.FinalText != "" && outcome.FinalText != lastText {
		e.reply(msg.ChatID, outcome.FinalText)
	}
	if outcome.FinalText != "" {
		modelParts = append(modelParts, conversation.TextPart(outcome.FinalText))
	}

	e.conv.Append(msg.SessionKey, conversation.RoleUser, []conversation.Part{conversation.TextPart(prompt)})
	e.conv.Append(msg.SessionKey, conversation.RoleModel, modelParts)
	return true
}

// sendImage tries the in-memory bytes first, then re-reads the persisted
// file, then gives up with a text message.
func (e *Engine) sendImage(chatID string, data []byte, path string) {
	err := e.sender.SendImage(chatID, data)
	if err == nil {
		return
	}
	logger.Warn("image send failed, retrying from disk", "chat", chatID, "error", err)

	if path != "" {
		if fileData, err := os.ReadFile(path); err == nil {
			if err := e.sender.SendImage(chatID, fileData); err == nil {
				return
			}
		}
	}
	e.reply(chatID, "The image was generated but could not be delivered. Please try again.")
}

func (e *Engine) describeCallError(err error) string {
	var se *gemini.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return e.cfg.Messages.RateLimited
		}
		return "The image service rejected the request: " + se.Hint
	}
	return e.cfg.Messages.GenericFailure
}
