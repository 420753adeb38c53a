// Package discord implements the Discord channel over the raw gateway
// websocket plus the REST API for sends.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/channels"
	"github.com/nextlevelbuilder/nanobot/internal/config"
)

const (
	// reconnectDelay between gateway sessions after a transport failure.
	reconnectDelay = 5 * time.Second

	// typingInterval re-pings the typing indicator while a reply is pending.
	typingInterval = 8 * time.Second

	// maxMessageChars is Discord's hard limit per message.
	maxMessageChars = 2000

	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
	defaultAPIBase    = "https://discord.com/api/v10"

	// guilds + guild messages + direct messages + message content
	defaultIntents = 1<<0 | 1<<9 | 1<<12 | 1<<15
)

// Channel connects to Discord: gateway websocket in, REST out.
type Channel struct {
	*channels.BaseChannel
	config config.DiscordConfig
	rest   *restClient
	media  *mediaStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	seq    int64
	typing map[string]context.CancelFunc // chatID → typing task cancel
}

// New creates a Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = defaultGatewayURL
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Intents == 0 {
		cfg.Intents = defaultIntents
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		config:      cfg,
		rest:        newRestClient(cfg.APIBase, cfg.Token),
		media:       newMediaStore(cfg.MediaDir),
		typing:      make(map[string]context.CancelFunc),
	}, nil
}

// Start launches the gateway connect loop.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord channel")

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.gatewayLoop(c.ctx)
	}()

	c.SetRunning(true)
	return nil
}

// Stop cancels the gateway loop and all typing tasks. Idempotent.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord channel")

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	for chatID, cancel := range c.typing {
		cancel()
		delete(c.typing, chatID)
	}
	c.mu.Unlock()

	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message over REST, chunked to the platform
// limit. The typing indicator for the conversation stops on success.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	replyTo := msg.ReplyTo
	for _, chunk := range splitMessage(msg.Content, maxMessageChars) {
		if err := c.rest.createMessage(ctx, msg.ChatID, chunk, replyTo); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
		replyTo = "" // only the first chunk carries the reply reference
	}

	c.stopTyping(msg.ChatID)
	return nil
}

// startTyping begins the periodic typing indicator for a conversation.
// A new start replaces any previous task for the same conversation.
func (c *Channel) startTyping(chatID string) {
	c.mu.Lock()
	if cancel, ok := c.typing[chatID]; ok {
		cancel()
	}
	taskCtx, cancel := context.WithCancel(c.ctx)
	c.typing[chatID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		for {
			if err := c.rest.triggerTyping(taskCtx, chatID); err != nil {
				slog.Debug("typing indicator failed", "chat_id", chatID, "error", err)
			}
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (c *Channel) stopTyping(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.typing[chatID]; ok {
		cancel()
		delete(c.typing, chatID)
	}
}

// lastSeq returns the last seen gateway sequence number, or nil before any.
func (c *Channel) lastSeq() *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq == 0 {
		return nil
	}
	v := c.seq
	return &v
}

func (c *Channel) setSeq(seq int64) {
	c.mu.Lock()
	c.seq = seq
	c.mu.Unlock()
}

// splitMessage chunks content at the platform limit, preferring newline
// boundaries.
func splitMessage(content string, limit int) []string {
	if content == "" {
		return nil
	}

	var chunks []string
	for len(content) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if content[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
		if len(content) > 0 && content[0] == '\n' {
			content = content[1:]
		}
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
