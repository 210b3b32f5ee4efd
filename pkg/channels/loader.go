package channels

import (
	"log/slog"
	"sort"

	"ebpro/pkg/config"
	"ebpro/pkg/gateway"
)

// LoadFromConfig builds every channel listed in cfg.Channels through its
// registered factory. Unknown or misconfigured channels are logged and
// skipped so one broken transport does not take the others down.
func LoadFromConfig(cfg *config.Config) []gateway.Channel {
	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []gateway.Channel
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(cfg.Channels[name], cfg)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., the channel is disabled), skip
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel created", "name", name)
	}
	return out
}
