package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workspace: "~/.nanobot/workspace",
		Agent: AgentConfig{
			TimeoutSeconds: 300,
		},
		Cron: CronConfig{
			StorePath: "~/.nanobot/cron/jobs.json",
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes: 30,
		},
		Bus: BusConfig{
			QueueSize: 256,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults (plus env), not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("NANOBOT_WORKSPACE", &c.Workspace)
	envStr("NANOBOT_AGENT_COMMAND", &c.Agent.Command)
	envStr("NANOBOT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("NANOBOT_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("NANOBOT_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("NANOBOT_FEISHU_APP_ID", &c.Channels.Feishu.AppID)
	envStr("NANOBOT_FEISHU_APP_SECRET", &c.Channels.Feishu.AppSecret)
	envStr("NANOBOT_FEISHU_ENCRYPT_KEY", &c.Channels.Feishu.EncryptKey)
	envStr("NANOBOT_FEISHU_VERIFICATION_TOKEN", &c.Channels.Feishu.VerificationToken)

	// Auto-enable channels if credentials are provided via env
	if os.Getenv("NANOBOT_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if os.Getenv("NANOBOT_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}
	if os.Getenv("NANOBOT_WHATSAPP_BRIDGE_URL") != "" {
		c.Channels.WhatsApp.Enabled = true
	}
	if os.Getenv("NANOBOT_FEISHU_APP_ID") != "" && os.Getenv("NANOBOT_FEISHU_APP_SECRET") != "" {
		c.Channels.Feishu.Enabled = true
	}
}

// WorkspacePath returns the expanded absolute workspace directory.
func (c *Config) WorkspacePath() string {
	ws := ExpandHome(c.Workspace)
	if !filepath.IsAbs(ws) {
		if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
	}
	return ws
}

// CronStorePath returns the expanded cron store file path.
func (c *Config) CronStorePath() string {
	path := c.Cron.StorePath
	if path == "" {
		path = Default().Cron.StorePath
	}
	return ExpandHome(path)
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
