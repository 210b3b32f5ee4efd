package gateway

import (
	"fmt"

	"ebpro/pkg/api"
	"ebpro/pkg/monitor"
)

// GatewayBuilder provides a fluent builder pattern interface for constructing
// and initializing a GatewayManager with all its necessary dependencies.
//
// All components (channels, handler) are pre-built and injected as
// instances; the Builder simply assembles and starts them.
type GatewayBuilder struct {
	gw        *GatewayManager      // The GatewayManager instance being constructed
	monitor   monitor.Monitor      // Monitoring implementation to be injected
	processor api.CommandProcessor // Turns instructions into dispatched actions
	channels  []api.Channel        // Pre-built channel instances to register
}

// NewGatewayBuilder creates a fresh GatewayBuilder instance and allocates
// an internal GatewayManager to be configured.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitoring implementation into the builder.
// This monitor will be started automatically during the Build() process.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithChannel adds pre-built channel instances to the gateway.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithHandler injects the command processor every channel hands its
// instructions to.
func (b *GatewayBuilder) WithHandler(p api.CommandProcessor) *GatewayBuilder {
	b.processor = p
	return b
}

// Build finalizes the configuration, registers all channels, and starts
// everything. Returns the fully operational GatewayManager or an error if
// any stage fails.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	if b.processor == nil {
		return nil, fmt.Errorf("gateway requires a command processor")
	}
	if len(b.channels) == 0 {
		return nil, fmt.Errorf("gateway requires at least one channel")
	}

	// 1. Initialize and start the monitoring service
	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	// 2. Register all pre-built channels
	for _, c := range b.channels {
		b.gw.Register(c)
	}

	// 3. Establish the core processor before any channel can deliver input
	b.gw.SetProcessor(b.processor)

	// 4. Start all registered channels
	if err := b.gw.StartAll(); err != nil {
		b.gw.StopAll()
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
