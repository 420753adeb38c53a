// Package whatsapp implements the WhatsApp channel against an external
// bridge process. The bridge speaks the WhatsApp protocol; this channel
// exchanges JSON frames with it over a websocket.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/channels"
	"github.com/nextlevelbuilder/nanobot/internal/config"
)

const (
	reconnectDelay   = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Channel connects to a WhatsApp bridge via websocket.
type Channel struct {
	*channels.BaseChannel
	config config.WhatsAppConfig

	mu   sync.Mutex
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom),
		config:      cfg,
	}, nil
}

// Start connects to the bridge and begins listening. A failed initial
// connection is not fatal; the listen loop keeps retrying.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop shuts down the channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	if c.done != nil {
		<-c.done
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message as a JSON frame to the bridge.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(map[string]interface{}{
		"type":    "message",
		"to":      msg.ChatID,
		"content": msg.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

// connect establishes the websocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.Dial(c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

// listenLoop reads frames from the bridge, reconnecting after a fixed
// delay on failure.
func (c *Channel) listenLoop() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("whatsapp read error, will reconnect", "error", err)
			}
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame map[string]interface{}
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Warn("invalid whatsapp frame JSON", "error", err)
			continue
		}
		if frameType, _ := frame["type"].(string); frameType == "message" {
			c.handleFrame(frame)
		}
	}
}

// handleFrame processes one inbound message frame from the bridge.
// Expected shape: {"type":"message","from":...,"chat":...,"content":...,
// "id":...,"media":[...]}.
func (c *Channel) handleFrame(frame map[string]interface{}) {
	senderID, ok := frame["from"].(string)
	if !ok || senderID == "" {
		return
	}

	chatID, _ := frame["chat"].(string)
	if chatID == "" {
		chatID = senderID
	}

	content, _ := frame["content"].(string)
	if content == "" {
		return
	}

	var media []string
	if raw, ok := frame["media"].([]interface{}); ok {
		for _, m := range raw {
			if path, ok := m.(string); ok {
				media = append(media, path)
			}
		}
	}

	metadata := make(map[string]string)
	if messageID, ok := frame["id"].(string); ok {
		metadata["message_id"] = messageID
	}

	slog.Debug("whatsapp message received",
		"sender_id", senderID,
		"chat_id", chatID,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(senderID, chatID, content, media, metadata)
}

var _ channels.Channel = (*Channel)(nil)
