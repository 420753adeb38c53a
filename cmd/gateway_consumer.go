package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/nanobot/internal/agent"
	"github.com/nextlevelbuilder/nanobot/internal/bus"
)

// consumeInboundMessages drains the inbound queue and drives the agent.
// Each message runs in its own goroutine so one slow turn never blocks the
// queue; replies and failures alike go back out through the outbound queue.
func consumeInboundMessages(ctx context.Context, msgBus *bus.MessageBus, runner agent.Runner) {
	slog.Info("inbound message consumer started")

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go processInbound(ctx, msgBus, runner, msg)
	}
}

func processInbound(ctx context.Context, msgBus *bus.MessageBus, runner agent.Runner, msg bus.InboundMessage) {
	sessionKey := msg.SessionKey()
	slog.Debug("processing inbound message",
		"session", sessionKey,
		"sender", msg.SenderID,
	)

	response, err := runner.ProcessDirect(ctx, msg.Content, sessionKey, msg.Channel, msg.ChatID)
	if err != nil {
		slog.Error("agent turn failed", "session", sessionKey, "error", err)
		msgBus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Error processing message: " + err.Error(),
		})
		return
	}
	if response == "" {
		slog.Debug("agent returned empty response, nothing to send", "session", sessionKey)
		return
	}

	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: response,
	}
	if messageID := msg.Metadata["message_id"]; messageID != "" {
		out.ReplyTo = messageID
	}
	msgBus.PublishOutbound(out)
}
