package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
)

// fakeChannel records sends for assertions.
type fakeChannel struct {
	*BaseChannel
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	sendErr error
}

func newFakeChannel(name string, b *bus.MessageBus) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, b, nil)}
}

func (f *fakeChannel) Start(_ context.Context) error {
	f.SetRunning(true)
	return nil
}

func (f *fakeChannel) Stop(_ context.Context) error {
	f.SetRunning(false)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.sendErr
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestManager_DispatchRoutesToChannel(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	discord := newFakeChannel("discord", b)
	m.RegisterChannel("discord", discord)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.StopAll(ctx)

	// Ingress → stub agent → egress round-trip.
	discord.HandleMessage("u1", "C1", "hi", nil, nil)
	in, ok := b.ConsumeInbound(ctx)
	if !ok || in.Content != "hi" {
		t.Fatalf("inbound not delivered: %+v", in)
	}
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: in.ChatID, Content: "hello"})

	waitFor(t, func() bool { return discord.sentCount() == 1 })

	discord.mu.Lock()
	got := discord.sent[0]
	discord.mu.Unlock()
	if got.Content != "hello" || got.ChatID != "C1" {
		t.Errorf("send payload = %+v", got)
	}
}

func TestManager_DispatchUnknownChannel(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	known := newFakeChannel("telegram", b)
	m.RegisterChannel("telegram", known)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.StopAll(ctx)

	// Unknown channel must be skipped without stalling the dispatcher.
	b.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "x", Content: "lost"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "c", Content: "kept"})

	waitFor(t, func() bool { return known.sentCount() == 1 })
}

func TestManager_SendErrorDoesNotStopDispatcher(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	flaky := newFakeChannel("discord", b)
	flaky.sendErr = errors.New("boom")
	m.RegisterChannel("discord", flaky)

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.StopAll(ctx)

	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "c", Content: "a"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord", ChatID: "c", Content: "b"})

	waitFor(t, func() bool { return flaky.sentCount() == 2 })
}

func TestManager_GetStatus(t *testing.T) {
	b := bus.New()
	m := NewManager(b)
	ch := newFakeChannel("feishu", b)
	m.RegisterChannel("feishu", ch)

	status := m.GetStatus()
	if s := status["feishu"]; !s.Enabled || s.Running {
		t.Errorf("before start: %+v", s)
	}

	ctx := context.Background()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	status = m.GetStatus()
	if s := status["feishu"]; !s.Running {
		t.Errorf("after start: %+v", s)
	}

	if err := m.StopAll(ctx); err != nil {
		t.Fatal(err)
	}
	status = m.GetStatus()
	if s := status["feishu"]; s.Running {
		t.Errorf("after stop: %+v", s)
	}
}
