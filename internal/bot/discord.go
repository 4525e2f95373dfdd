package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/pixelbot/pixelbot/internal/engine"
	"github.com/pixelbot/pixelbot/internal/logger"
)

type discord struct {
	session *discordgo.Session
	engine  *engine.Engine
	ctx     context.Context
}

func newDiscord(token string, eng *engine.Engine) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	d := &discord{
		session: session,
		engine:  eng,
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Start(ctx context.Context) error {
	d.ctx = ctx

	if err := d.session.Open(); err != nil {
		return err
	}

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) Send(chatID string, message string) error {
	_, err := d.session.ChannelMessageSend(channelID(chatID), message)
	if err != nil {
		logger.Error("discord send failed", "error", err, "channelID", chatID)
	}
	return err
}

func (d *discord) SendImage(chatID string, data []byte) error {
	_, err := d.session.ChannelMessageSendComplex(channelID(chatID), &discordgo.MessageSend{
		Files: []*discordgo.File{
			{
				Name:   "image.png",
				Reader: bytes.NewReader(data),
			},
		},
	})
	if err != nil {
		logger.Error("discord send photo failed", "error", err, "channelID", chatID)
		return err
	}
	logger.Info("discord photo sent", "channelID", chatID, "bytes", len(data))
	return nil
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	sessionKey := "discord:" + m.Author.ID
	if m.GuildID != "" {
		// Guild channels: per-sender sessions, not per-channel.
		sessionKey = fmt.Sprintf("discord:%s_%s", m.ChannelID, m.Author.ID)
	}

	event := engine.Message{
		SessionKey: sessionKey,
		ChatID:     "discord:" + m.ChannelID,
		SenderID:   "discord:" + m.Author.ID,
	}

	for _, att := range m.Attachments {
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		data, err := downloadAttachment(att.URL)
		if err != nil {
			logger.Error("failed to download attachment", "error", err)
			continue
		}
		event.ImageData = data
		logger.Info("image received", "session", sessionKey, "from", m.Author.Username, "bytes", len(data))
		d.engine.HandleImage(d.ctx, event)
		event.ImageData = nil
	}

	if m.Content != "" {
		event.Text = m.Content
		logger.Info("message received", "session", sessionKey, "from", m.Author.Username, "text", truncate(m.Content, 50))
		d.engine.HandleText(d.ctx, event)
	}
}

func channelID(chatID string) string {
	return strings.TrimPrefix(chatID, "discord:")
}

func downloadAttachment(url string) ([]byte, error) {
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
