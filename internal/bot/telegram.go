package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pixelbot/pixelbot/internal/engine"
	"github.com/pixelbot/pixelbot/internal/logger"
)

type telegram struct {
	api    *tgbotapi.BotAPI
	engine *engine.Engine
}

func newTelegram(token string, eng *engine.Engine) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &telegram{api: api, engine: eng}, nil
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}

			go t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	senderID := fmt.Sprintf("telegram:%d", msg.From.ID)
	sessionKey := senderID
	if !msg.Chat.IsPrivate() {
		// Group chats: per-sender sessions, not per-room.
		sessionKey = fmt.Sprintf("telegram:%d_%d", msg.Chat.ID, msg.From.ID)
	}

	event := engine.Message{
		SessionKey: sessionKey,
		ChatID:     fmt.Sprintf("telegram:%d", msg.Chat.ID),
		SenderID:   senderID,
	}

	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		data, err := t.downloadFile(photo.FileID)
		if err != nil {
			logger.Error("failed to download photo", "error", err)
			return
		}
		event.ImageData = data
		logger.Info("photo received", "session", sessionKey, "from", msg.From.UserName, "bytes", len(data))

		t.engine.HandleImage(ctx, event)

		if msg.Caption != "" {
			event.ImageData = nil
			event.Text = msg.Caption
			t.engine.HandleText(ctx, event)
		}
		return
	}

	event.Text = msg.Text
	logger.Info("message received", "session", sessionKey, "from", msg.From.UserName, "text", truncate(msg.Text, 50))
	t.engine.HandleText(ctx, event)
}

func (t *telegram) Send(chatID string, message string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(id, message)
	if _, err := t.api.Send(msg); err != nil {
		logger.Error("send failed", "error", err, "chatID", chatID)
		return err
	}
	return nil
}

func (t *telegram) SendImage(chatID string, data []byte) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	photoBytes := tgbotapi.FileBytes{Name: "image.png", Bytes: data}
	msg := tgbotapi.NewPhoto(id, photoBytes)
	if _, err := t.api.Send(msg); err != nil {
		logger.Error("send photo failed", "error", err, "chatID", chatID)
		return err
	}
	logger.Info("photo sent", "chatID", chatID, "bytes", len(data))
	return nil
}

func (t *telegram) downloadFile(fileID string) ([]byte, error) {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, err
	}

	url := file.Link(t.api.Token)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(chatID, "telegram:"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	return id, nil
}

// truncate shortens log lines to max runes without splitting a
// multi-byte character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max]) + "..."
}
