package sessions

import "testing"

func TestBuildAndParse(t *testing.T) {
	tests := []struct {
		channel string
		chatID  string
		want    string
	}{
		{"discord", "123", "discord:123"},
		{"feishu", "oc_abc", "feishu:oc_abc"},
		{"telegram", "42:topic", "telegram:42:topic"},
	}

	for _, tt := range tests {
		key := BuildKey(tt.channel, tt.chatID)
		if key != tt.want {
			t.Errorf("BuildKey(%q, %q) = %q, want %q", tt.channel, tt.chatID, key, tt.want)
		}
		ch, chat := Parse(key)
		if ch != tt.channel || chat != tt.chatID {
			t.Errorf("Parse(%q) = (%q, %q)", key, ch, chat)
		}
	}
}

func TestBuildCronKey(t *testing.T) {
	if got := BuildCronKey("abc123"); got != "cron:abc123" {
		t.Errorf("BuildCronKey = %q", got)
	}
	// No double prefix.
	if got := BuildCronKey("cron:abc123"); got != "cron:abc123" {
		t.Errorf("BuildCronKey = %q", got)
	}
	if !IsCronKey("cron:abc123") || IsCronKey("discord:1") {
		t.Error("IsCronKey misclassified")
	}
}
