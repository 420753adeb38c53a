package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInboundMessage_SessionKey(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want string
	}{
		{"discord dm", InboundMessage{Channel: "discord", ChatID: "C1"}, "discord:C1"},
		{"feishu group", InboundMessage{Channel: "feishu", ChatID: "oc_abc"}, "feishu:oc_abc"},
		{"empty chat", InboundMessage{Channel: "telegram"}, "telegram:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.SessionKey(); got != tt.want {
				t.Errorf("SessionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageBus_InboundRoundTrip(t *testing.T) {
	b := New()
	b.PublishInbound(InboundMessage{Channel: "discord", ChatID: "C1", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected a message before timeout")
	}
	if msg.Content != "hi" || msg.SessionKey() != "discord:C1" {
		t.Errorf("got %+v", msg)
	}
}

func TestMessageBus_OutboundFIFO(t *testing.T) {
	b := NewWithSize(16)
	for i := 0; i < 10; i++ {
		b.PublishOutbound(OutboundMessage{Channel: "telegram", Content: fmt.Sprintf("m%d", i)})
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		msg, ok := b.ConsumeOutbound(ctx)
		if !ok {
			t.Fatal("consume failed")
		}
		if want := fmt.Sprintf("m%d", i); msg.Content != want {
			t.Fatalf("out of order: got %q, want %q", msg.Content, want)
		}
	}
}

func TestMessageBus_ConsumeCancelled(t *testing.T) {
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound returned ok on cancelled context")
	}
	if _, ok := b.ConsumeOutbound(ctx); ok {
		t.Error("ConsumeOutbound returned ok on cancelled context")
	}
}

func TestMessageBus_PublishBackpressure(t *testing.T) {
	b := NewWithSize(1)
	b.PublishInbound(InboundMessage{Content: "first"})

	done := make(chan struct{})
	go func() {
		b.PublishInbound(InboundMessage{Content: "second"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish did not block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := b.ConsumeInbound(context.Background()); !ok {
		t.Fatal("consume failed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked publish never completed after drain")
	}
}
