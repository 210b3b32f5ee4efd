package channels

import (
	"sort"

	"ebpro/pkg/config"
	"ebpro/pkg/gateway"

	jsoniter "github.com/json-iterator/go"
)

// ChannelFactory defines the abstract interface for transport-specific
// channel creators. New transports register a factory without touching the
// gateway.
type ChannelFactory interface {
	// Create instantiates a concrete Channel from its raw configuration
	// block and the shared application configuration.
	Create(rawConfig jsoniter.RawMessage, cfg *config.Config) (gateway.Channel, error)
}

// channelRegistry maps transport names (e.g., "telegram") to their factories.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by transport name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}

// Names returns the registered transport names in sorted order.
func Names() []string {
	names := make([]string, 0, len(channelRegistry))
	for name := range channelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
