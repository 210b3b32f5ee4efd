package web

import (
	"fmt"

	"ebpro/pkg/channels"
	"ebpro/pkg/config"
	"ebpro/pkg/gateway"

	jsoniter "github.com/json-iterator/go"
)

// DefaultPort is used when the web block omits "port".
const DefaultPort = 8000

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, _ *config.Config) (gateway.Channel, error) {
	var pCfg WebConfig
	// 設定預設 Port
	pCfg.Port = DefaultPort

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &pCfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if pCfg.Port < 0 || pCfg.Port > 65535 {
		return nil, fmt.Errorf("invalid web port %d", pCfg.Port)
	}

	return NewWebChannel(pCfg), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
