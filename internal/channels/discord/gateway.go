package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// invalidSessionDelay before reconnecting after op 9.
const invalidSessionDelay = time.Second

// payload is one gateway frame.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatIntervalMs int64 `json:"heartbeat_interval"`
}

type messageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Content   string `json:"content"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Attachments       []attachment `json:"attachments"`
	ReferencedMessage *struct {
		ID string `json:"id"`
	} `json:"referenced_message,omitempty"`
}

type attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// gatewayLoop dials gateway sessions until the channel stops. Each failed
// session is followed by a fixed backoff.
func (c *Channel) gatewayLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("discord gateway session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// runSession runs one gateway connection: HELLO → IDENTIFY → READY, then
// dispatch events interleaved with heartbeats until the transport drops or
// the server asks for a reconnect.
func (c *Channel) runSession(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 22)

	// First frame must be HELLO with the heartbeat interval.
	frame, err := readFrame(ctx, conn)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if frame.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", frame.Op)
	}
	var hello helloData
	if err := json.Unmarshal(frame.D, &hello); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}
	interval := time.Duration(hello.HeartbeatIntervalMs) * time.Millisecond

	if err := c.identify(ctx, conn); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	// Heartbeats run in their own task, cancelled with the session.
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(sessionCtx, conn, interval)

	for {
		frame, err := readFrame(sessionCtx, conn)
		if err != nil {
			return err
		}
		if frame.S != nil {
			c.setSeq(*frame.S)
		}

		switch frame.Op {
		case opDispatch:
			c.handleDispatch(frame)
		case opHeartbeat:
			// Server requested an immediate heartbeat.
			if err := c.sendHeartbeat(sessionCtx, conn); err != nil {
				return err
			}
		case opReconnect:
			slog.Info("discord gateway requested reconnect")
			return nil
		case opInvalidSession:
			slog.Warn("discord session invalidated")
			select {
			case <-sessionCtx.Done():
			case <-time.After(invalidSessionDelay):
			}
			return nil
		case opHeartbeatAck:
			// noted, nothing to do
		default:
			slog.Debug("unhandled gateway op", "op", frame.Op)
		}
	}
}

func (c *Channel) identify(ctx context.Context, conn *websocket.Conn) error {
	return writeJSON(ctx, conn, payload{
		Op: opIdentify,
		D: mustMarshal(map[string]any{
			"token":   c.config.Token,
			"intents": c.config.Intents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "nanobot",
				"device":  "nanobot",
			},
		}),
	})
}

func (c *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(ctx, conn); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("discord heartbeat failed", "error", err)
				}
				return
			}
		}
	}
}

func (c *Channel) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	var d json.RawMessage = []byte("null")
	if seq := c.lastSeq(); seq != nil {
		d = mustMarshal(*seq)
	}
	return writeJSON(ctx, conn, payload{Op: opHeartbeat, D: d})
}

func (c *Channel) handleDispatch(frame payload) {
	switch frame.T {
	case "READY":
		slog.Info("discord gateway ready")
	case "MESSAGE_CREATE":
		var msg messageCreate
		if err := json.Unmarshal(frame.D, &msg); err != nil {
			slog.Warn("malformed message_create", "error", err)
			return
		}
		c.handleMessageCreate(msg)
	}
}

// handleMessageCreate normalizes one platform message into an inbound bus
// record. Bot authors are ignored; attachments become content markers plus
// downloaded media paths.
func (c *Channel) handleMessageCreate(msg messageCreate) {
	if msg.Author.Bot {
		return
	}

	content := msg.Content
	var media []string
	for _, att := range msg.Attachments {
		marker, path := c.media.fetch(c.ctx, msg.ID, att)
		content = appendLine(content, marker)
		if path != "" {
			media = append(media, path)
		}
	}

	if content == "" && len(media) == 0 {
		return
	}

	c.startTyping(msg.ChannelID)

	metadata := map[string]string{"message_id": msg.ID}
	if msg.GuildID != "" {
		metadata["guild_id"] = msg.GuildID
	}
	if msg.ReferencedMessage != nil && msg.ReferencedMessage.ID != "" {
		metadata["reply_to"] = msg.ReferencedMessage.ID
	}
	c.HandleMessage(msg.Author.ID, msg.ChannelID, content, media, metadata)
}

func appendLine(content, line string) string {
	if line == "" {
		return content
	}
	if content == "" {
		return line
	}
	return content + "\n" + line
}

func readFrame(ctx context.Context, conn *websocket.Conn) (payload, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return payload{}, err
	}
	var frame payload
	if err := json.Unmarshal(data, &frame); err != nil {
		// Malformed frame: warn and skip, stay connected.
		slog.Warn("malformed gateway frame", "error", err)
		return payload{Op: -1}, nil
	}
	return frame, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
