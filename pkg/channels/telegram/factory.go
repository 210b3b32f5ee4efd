package telegram

import (
	"fmt"

	"ebpro/pkg/channels"
	"ebpro/pkg/config"
	"ebpro/pkg/gateway"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory 負責建立 Telegram Channels
type TelegramFactory struct{}

// Create 實作 ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, _ *config.Config) (gateway.Channel, error) {
	tgCfg, err := parseConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	return NewTelegramChannel(tgCfg)
}

// parseConfig decodes and validates the telegram block.
func parseConfig(rawConfig jsoniter.RawMessage) (TelegramConfig, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return tgCfg, fmt.Errorf("failed to parse telegram config: %w", err)
	}

	if tgCfg.Token == "" {
		return tgCfg, fmt.Errorf("missing telegram token")
	}
	// The bot bypasses API_TOKEN, so an empty allowlist would open EBPro to anyone
	if len(tgCfg.AllowedUsers) == 0 {
		return tgCfg, fmt.Errorf("telegram allowed_users must list at least one user")
	}
	return tgCfg, nil
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
