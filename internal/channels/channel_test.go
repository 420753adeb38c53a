package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/nanobot/internal/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{"empty list admits all", nil, "12345", true},
		{"empty list admits compound", []string{}, "12345|alice", true},
		{"exact id match", []string{"12345"}, "12345", true},
		{"exact id mismatch", []string{"12345"}, "99999", false},
		{"compound id part matches", []string{"12345"}, "12345|alice", true},
		{"compound username part matches", []string{"alice"}, "12345|alice", true},
		{"compound no part matches", []string{"bob"}, "12345|alice", false},
		{"at-prefixed username", []string{"@alice"}, "12345|alice", true},
		{"at-prefixed exact", []string{"@alice"}, "alice", true},
		{"full compound listed", []string{"12345|alice"}, "12345|alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("test", bus.New(), tt.allowList)
			if got := c.IsAllowed(tt.senderID); got != tt.want {
				t.Errorf("IsAllowed(%q) with list %v = %v, want %v",
					tt.senderID, tt.allowList, got, tt.want)
			}
		})
	}
}

func TestBaseChannel_HandleMessage(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("discord", b, []string{"u1"})

	c.HandleMessage("u1", "C1", "hello", nil, map[string]string{"message_id": "m1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("allowed sender's message was not published")
	}
	if msg.SessionKey() != "discord:C1" {
		t.Errorf("session key = %q, want %q", msg.SessionKey(), "discord:C1")
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if msg.Metadata["message_id"] != "m1" {
		t.Errorf("metadata not carried: %v", msg.Metadata)
	}
}

func TestBaseChannel_HandleMessage_Rejected(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("discord", b, []string{"u1"})

	c.HandleMessage("intruder", "C1", "hello", nil, nil)

	if b.InboundLen() != 0 {
		t.Error("rejected sender's message reached the bus")
	}
}

func TestBaseChannel_HandleMessage_EveryAcceptedMessagePublished(t *testing.T) {
	const n = 40
	b := bus.NewWithSize(n)
	c := NewBaseChannel("telegram", b, nil)

	// With an empty allow-list every call must publish, however rapid the
	// burst; there is no drop path between acceptance and the bus.
	for i := 0; i < n; i++ {
		c.HandleMessage("u1", "C1", "hi", nil, nil)
	}

	if got := b.InboundLen(); got != n {
		t.Fatalf("published = %d of %d", got, n)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 4); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
}
