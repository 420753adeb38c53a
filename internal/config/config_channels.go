package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Feishu   FeishuConfig   `json:"feishu"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token"`
	Proxy     string              `json:"proxy,omitempty"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type DiscordConfig struct {
	Enabled    bool                `json:"enabled"`
	Token      string              `json:"token"`
	AllowFrom  FlexibleStringSlice `json:"allow_from"`
	GatewayURL string              `json:"gateway_url,omitempty"` // default wss://gateway.discord.gg
	APIBase    string              `json:"api_base,omitempty"`    // default https://discord.com/api/v10
	Intents    int                 `json:"intents,omitempty"`     // default guilds + guild/dm messages + content
	MediaDir   string              `json:"media_dir,omitempty"`   // default ~/.nanobot/media
}

type WhatsAppConfig struct {
	Enabled   bool                `json:"enabled"`
	BridgeURL string              `json:"bridge_url"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type FeishuConfig struct {
	Enabled           bool                `json:"enabled"`
	AppID             string              `json:"app_id"`
	AppSecret         string              `json:"app_secret"`
	EncryptKey        string              `json:"encrypt_key,omitempty"`
	VerificationToken string              `json:"verification_token,omitempty"`
	AllowFrom         FlexibleStringSlice `json:"allow_from"`
}
