package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Heartbeat.IntervalMinutes != 30 {
		t.Errorf("heartbeat interval default = %d", cfg.Heartbeat.IntervalMinutes)
	}
	if cfg.Bus.QueueSize != 256 {
		t.Errorf("queue size default = %d", cfg.Bus.QueueSize)
	}
}

func TestLoad_JSON5AndAllowFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments are allowed
		channels: {
			discord: { enabled: true, token: "tok", allow_from: [123, "alice"] },
		},
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Token != "tok" {
		t.Errorf("discord config = %+v", cfg.Channels.Discord)
	}
	got := []string(cfg.Channels.Discord.AllowFrom)
	if len(got) != 2 || got[0] != "123" || got[1] != "alice" {
		t.Errorf("allow_from = %v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NANOBOT_DISCORD_TOKEN", "env-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Channels.Discord.Token != "env-token" {
		t.Errorf("token = %q", cfg.Channels.Discord.Token)
	}
	if !cfg.Channels.Discord.Enabled {
		t.Error("discord not auto-enabled by env credential")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~/.nanobot/media", home + "/.nanobot/media"},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
