// Package engine routes inbound chat events through the drawing flows:
// generate, edit, reference edit, merge, reverse prompt, and analysis.
// It owns all per-user state (conversations, cached images, pending
// expectations) and hands finished bytes back to the chat transport.
package engine

import (
	"context"
	"time"

	"github.com/pixelbot/pixelbot/internal/config"
	"github.com/pixelbot/pixelbot/internal/conversation"
	"github.com/pixelbot/pixelbot/internal/expiry"
	"github.com/pixelbot/pixelbot/internal/gemini"
	"github.com/pixelbot/pixelbot/internal/imagecache"
	"github.com/pixelbot/pixelbot/internal/logger"
	"github.com/pixelbot/pixelbot/internal/pending"
	"github.com/pixelbot/pixelbot/internal/translate"
)

// Message is an inbound chat event, normalized by the transport layer.
// SessionKey is the stable per-user identity (sender-scoped even in
// group chats); ChatID is where replies go; SenderID is the raw user id
// used for the group-chat image cache duplicate.
type Message struct {
	SessionKey string
	ChatID     string
	SenderID   string
	Text       string
	ImageData  []byte
	ImagePath  string
}

// Sender delivers replies. Implemented by the bot layer.
type Sender interface {
	Send(chatID, text string) error
	SendImage(chatID string, data []byte) error
}

// Provider executes one generation call. Implemented by the Gemini
// client; faked in tests.
type Provider interface {
	Do(ctx context.Context, payload []byte, policy gemini.RetryPolicy) ([]byte, error)
}

// Charger is consulted before costed operations. A nil charger
// disables point accounting.
type Charger interface {
	Charge(userID, operation string, cost int) bool
}

// Policies are the per-flow retry bounds.
type Policies struct {
	Generate gemini.RetryPolicy
	Edit     gemini.RetryPolicy
	Vision   gemini.RetryPolicy
}

type Config struct {
	Commands        config.Commands
	Messages        config.Messages
	Points          config.PointsConfig
	Policies        Policies
	FollowUpTimeout time.Duration
	APIKeyPresent   bool
}

type Deps struct {
	Provider      Provider
	Conversations *conversation.Manager
	Cache         *imagecache.Cache
	Pending       *pending.Registry
	Translator    *translate.Translator
	Charger       Charger
	Clock         expiry.Clock
}

// analysisMemory supports one follow-up question about the most recent
// analyzed image.
type analysisMemory struct {
	image []byte
}

type Engine struct {
	cfg        Config
	sender     Sender
	provider   Provider
	conv       *conversation.Manager
	cache      *imagecache.Cache
	pending    *pending.Registry
	translator *translate.Translator
	charger    Charger
	analysis   *expiry.Store[analysisMemory]
}

func New(cfg Config, deps Deps) *Engine {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:        cfg,
		provider:   deps.Provider,
		conv:       deps.Conversations,
		cache:      deps.Cache,
		pending:    deps.Pending,
		translator: deps.Translator,
		charger:    deps.Charger,
		analysis:   expiry.NewStore[analysisMemory](cfg.FollowUpTimeout, now),
	}
}

// SetSender attaches the reply transport. Must be called before any
// handler runs; the bot layer needs the engine first, so wiring is
// two-step.
func (e *Engine) SetSender(s Sender) {
	e.sender = s
}

// SweepAnalysis drops stale follow-up memories. Called from the
// periodic scheduler alongside the other sweeps.
func (e *Engine) SweepAnalysis() int {
	return e.analysis.Sweep()
}

// EndSession clears every piece of per-user state in one step.
func (e *Engine) EndSession(key string) {
	e.conv.Clear(key)
	e.cache.Forget(key)
	e.pending.Clear(key)
	e.analysis.Remove(key)
}

func (e *Engine) guardAPIKey(msg Message) bool {
	if e.cfg.APIKeyPresent {
		return true
	}
	e.reply(msg.ChatID, e.cfg.Messages.MissingAPIKey)
	return false
}

func (e *Engine) charge(msg Message, operation string, cost int) bool {
	if e.charger == nil || !e.cfg.Points.Enabled || cost <= 0 {
		return true
	}
	if e.charger.Charge(msg.SessionKey, operation, cost) {
		return true
	}
	e.reply(msg.ChatID, "You don't have enough points for this. Earn more and try again.")
	return false
}

func (e *Engine) maybeTranslate(ctx context.Context, msg Message, prompt string) string {
	if e.translator == nil || !e.translator.EnabledFor(msg.SessionKey) {
		return prompt
	}
	return e.translator.Translate(ctx, prompt)
}

func (e *Engine) reply(chatID, text string) {
	if text == "" {
		return
	}
	if err := e.sender.Send(chatID, text); err != nil {
		logger.Error("text reply failed", "chat", chatID, "error", err)
	}
}
