// Package telegram implements the Telegram channel via the Bot API using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/channels"
	"github.com/nextlevelbuilder/nanobot/internal/config"
)

const (
	// pollTimeout is the long polling timeout in seconds.
	pollTimeout = 30
	// maxMessageChars is the Bot API per-message limit.
	maxMessageChars = 4096
	// stopTimeout bounds the wait for the polling goroutine on shutdown.
	// Telegram holds a getUpdates lock until the old poller exits.
	stopTimeout = 10 * time.Second
)

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot     *telego.Bot
	config  config.TelegramConfig
	limiter *rate.Limiter

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
		// Bot API allows ~30 messages/second overall.
		limiter: rate.NewLimiter(rate.Every(40*time.Millisecond), 5),
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        pollTimeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleUpdate(update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the poller to exit so Telegram
// releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(stopTimeout):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers outbound content, chunked to the Bot API limit and paced
// by the rate limiter. The first chunk carries the reply reference.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", msg.ChatID, err)
	}

	chunks := splitMessage(msg.Content, maxMessageChars)
	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}

		params := tu.Message(tu.ID(chatID), chunk)
		if i == 0 && msg.ReplyTo != "" {
			if replyID, perr := strconv.Atoi(msg.ReplyTo); perr == nil {
				params.ReplyParameters = &telego.ReplyParameters{MessageID: replyID}
			}
		}

		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// handleUpdate normalizes one message update and publishes it inbound.
func (c *Channel) handleUpdate(message *telego.Message) {
	if message.From == nil {
		return
	}

	userID := strconv.FormatInt(message.From.ID, 10)
	senderID := userID
	if message.From.Username != "" {
		senderID = userID + "|" + message.From.Username
	}

	content := messageContent(message)
	if content == "" {
		return
	}

	chatIDStr := strconv.FormatInt(message.Chat.ID, 10)
	c.HandleMessage(senderID, chatIDStr, content, nil, map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"chat_type":  message.Chat.Type,
	})
}

// messageContent extracts text, falling back to captions and placeholders
// for media-only messages.
func messageContent(message *telego.Message) string {
	if text := strings.TrimSpace(message.Text); text != "" {
		return text
	}

	var placeholder string
	switch {
	case len(message.Photo) > 0:
		placeholder = "[photo]"
	case message.Voice != nil:
		placeholder = "[voice]"
	case message.Document != nil:
		placeholder = "[document]"
	case message.Sticker != nil:
		placeholder = "[sticker]"
	case message.Video != nil:
		placeholder = "[video]"
	}

	caption := strings.TrimSpace(message.Caption)
	switch {
	case placeholder != "" && caption != "":
		return placeholder + " " + caption
	case placeholder != "":
		return placeholder
	default:
		return caption
	}
}

// splitMessage splits content into chunks of at most limit characters,
// preferring to break at newlines in the upper half of each chunk.
func splitMessage(content string, limit int) []string {
	var chunks []string
	for len(content) > 0 {
		if len(content) <= limit {
			chunks = append(chunks, content)
			break
		}
		cutAt := limit
		if idx := strings.LastIndex(content[:limit], "\n"); idx > limit/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, strings.TrimRight(content[:cutAt], "\n"))
		content = content[cutAt:]
	}
	return chunks
}

var _ channels.Channel = (*Channel)(nil)
