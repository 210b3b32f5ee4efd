package gateway

import (
	"ebpro/pkg/api"
)

// Aliases for the api contracts the gateway routes between.
type Channel = api.Channel
type ChannelContext = api.ChannelContext
type CommandProcessor = api.CommandProcessor
type SessionContext = api.SessionContext
