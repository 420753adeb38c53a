// Package feishu implements the Feishu/Lark channel. The platform SDK owns
// the websocket on its own goroutines; events are bridged back into the
// channel's run loop through a buffered channel and never processed inline
// on an SDK goroutine.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
	"github.com/nextlevelbuilder/nanobot/internal/channels"
	"github.com/nextlevelbuilder/nanobot/internal/config"
)

// seenReaction acknowledges every admitted inbound message.
const seenReaction = "THUMBSUP"

// eventBuffer bounds the SDK to run loop bridge.
const eventBuffer = 64

// inboundEvent is the normalized form handed from the SDK callback to the
// run loop.
type inboundEvent struct {
	messageID  string
	senderID   string
	senderType string
	chatID     string
	chatType   string
	msgType    string
	content    string
}

// Channel connects to Feishu through the official SDK websocket client.
type Channel struct {
	*channels.BaseChannel
	config   config.FeishuConfig
	client   *lark.Client
	wsClient *larkws.Client
	dedup    *dedupCache
	events   chan inboundEvent
	react    func(ctx context.Context, messageID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Feishu channel from config.
func New(cfg config.FeishuConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("feishu app_id and app_secret are required")
	}

	c := &Channel{
		BaseChannel: channels.NewBaseChannel("feishu", msgBus, cfg.AllowFrom),
		config:      cfg,
		client:      lark.NewClient(cfg.AppID, cfg.AppSecret),
		dedup:       newDedupCache(),
		events:      make(chan inboundEvent, eventBuffer),
	}
	c.react = c.reactSeen

	eventDispatcher := dispatcher.NewEventDispatcher(cfg.VerificationToken, cfg.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(c.onMessageReceive)
	c.wsClient = larkws.NewClient(cfg.AppID, cfg.AppSecret,
		larkws.WithEventHandler(eventDispatcher),
	)

	return c, nil
}

// Start launches the run loop and the SDK websocket client.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting feishu channel")

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(c.ctx)
	}()

	// The SDK owns the connection and its reconnects.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.wsClient.Start(c.ctx); err != nil && c.ctx.Err() == nil {
			slog.Error("feishu websocket client exited", "error", err)
		}
	}()

	c.SetRunning(true)
	return nil
}

// Stop cancels the run loop and the SDK client.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping feishu channel")

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.SetRunning(false)
	return nil
}

// Send renders the outbound content as an interactive card and delivers it.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for feishu send")
	}

	card, err := buildCard(msg.Content)
	if err != nil {
		return fmt.Errorf("feishu card render: %w", err)
	}

	resp, err := c.client.Im.Message.Create(ctx,
		larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(receiveIDType(msg.ChatID)).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				MsgType(larkim.MsgTypeInteractive).
				ReceiveId(msg.ChatID).
				Content(card).
				Build()).
			Build())
	if err != nil {
		return fmt.Errorf("feishu send: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("feishu send failed: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// onMessageReceive runs on an SDK goroutine. It only normalizes the event
// and hands it to the run loop; when the bridge is full the event is
// dropped instead of stalling the SDK.
func (c *Channel) onMessageReceive(_ context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	msg := event.Event.Message

	ev := inboundEvent{
		messageID: deref(msg.MessageId),
		chatID:    deref(msg.ChatId),
		chatType:  deref(msg.ChatType),
		msgType:   deref(msg.MessageType),
		content:   deref(msg.Content),
	}
	if sender := event.Event.Sender; sender != nil {
		ev.senderType = deref(sender.SenderType)
		if sender.SenderId != nil {
			ev.senderID = deref(sender.SenderId.OpenId)
		}
	}

	select {
	case c.events <- ev:
	default:
		slog.Warn("feishu event dropped, bridge full", "message_id", ev.messageID)
	}
	return nil
}

func (c *Channel) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		}
	}
}

// handleEvent applies dedup and sender filtering, normalizes content, and
// publishes the inbound message.
func (c *Channel) handleEvent(ctx context.Context, ev inboundEvent) {
	if ev.messageID == "" || c.dedup.Seen(ev.messageID) {
		return
	}
	if ev.senderType != "" && ev.senderType != "user" {
		return
	}

	content := normalizeContent(ev.msgType, ev.content)
	if content == "" {
		return
	}

	// Direct chats address the sender's open id; groups the chat id.
	chatID := ev.chatID
	if ev.chatType == "p2p" && ev.senderID != "" {
		chatID = ev.senderID
	}

	if !c.IsAllowed(ev.senderID) {
		slog.Debug("feishu sender not allowed", "sender", ev.senderID)
		return
	}

	c.react(ctx, ev.messageID)

	c.HandleMessage(ev.senderID, chatID, content, nil, map[string]string{
		"message_id": ev.messageID,
		"chat_type":  ev.chatType,
	})
}

// reactSeen acknowledges an inbound message with an emoji. Best effort.
func (c *Channel) reactSeen(ctx context.Context, messageID string) {
	resp, err := c.client.Im.MessageReaction.Create(ctx,
		larkim.NewCreateMessageReactionReqBuilder().
			MessageId(messageID).
			Body(larkim.NewCreateMessageReactionReqBodyBuilder().
				ReactionType(larkim.NewEmojiBuilder().
					EmojiType(seenReaction).
					Build()).
				Build()).
			Build())
	if err != nil {
		slog.Debug("feishu reaction failed", "message_id", messageID, "error", err)
		return
	}
	if !resp.Success() {
		slog.Debug("feishu reaction rejected", "message_id", messageID, "code", resp.Code)
	}
}

// normalizeContent extracts text from the SDK's JSON content envelope, or
// substitutes a placeholder for non-text message types.
func normalizeContent(msgType, content string) string {
	if msgType == "text" {
		var envelope struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &envelope); err != nil {
			slog.Warn("feishu text envelope parse failed", "error", err)
			return ""
		}
		return strings.TrimSpace(envelope.Text)
	}
	if msgType == "" {
		return ""
	}
	return "[" + msgType + "]"
}

// receiveIDType derives the receive id type from the target id prefix:
// group chat ids carry oc_, everything else is treated as an open id.
func receiveIDType(chatID string) string {
	if strings.HasPrefix(chatID, "oc_") {
		return larkim.ReceiveIdTypeChatId
	}
	return larkim.ReceiveIdTypeOpenId
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ channels.Channel = (*Channel)(nil)
