package api

import "context"

// Channel defines the standardized lifecycle interface for command transports.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
}

// ChannelContext provides the interface for a Channel implementation to
// hand incoming instructions back to the Gateway core.
type ChannelContext interface {
	// Handle runs one instruction to completion and returns its result or a
	// failure. It blocks while another action is executing.
	Handle(ctx context.Context, in *Instruction) (*Result, error)
	// Execute runs an already classified action, bypassing the parser.
	Execute(ctx context.Context, req *ActionCall) (*Result, error)
	// Actions lists the actions that can currently be executed.
	Actions() []Action
}

// CommandProcessor is implemented by the component that turns instructions
// into dispatched actions (the handler).
type CommandProcessor interface {
	Handle(ctx context.Context, in *Instruction) (*Result, error)
	Execute(ctx context.Context, req *ActionCall) (*Result, error)
	Actions() []Action
}

// SessionContext encapsulates identity and routing information for the
// caller of a single instruction.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the request (e.g., "web")
	UserID    string // Platform-specific unique identifier for the caller
	Username  string // Display name of the caller, if the platform has one
	RequestID string // Unique identifier used to correlate log lines
}

// Instruction is a free-text request plus optional parameter overrides.
type Instruction struct {
	Session SessionContext
	Text    string            // Raw natural-language text
	Args    map[string]string // Overrides; win over values extracted from Text
	Token   string            // Caller token, compared with API_TOKEN
	// Preauthorized marks instructions whose channel already authenticated
	// the caller by its own means (e.g., a Telegram user allowlist).
	Preauthorized bool
}

// ActionCall is a structured request naming the action directly.
type ActionCall struct {
	Session       SessionContext
	Action        Action
	Args          map[string]string
	Token         string
	Preauthorized bool
}

// Result is the outcome of a successfully executed action.
type Result struct {
	Action Action `json:"action"`
	File   string `json:"file,omitempty"`  // Output file produced by the action, if any
	Notes  string `json:"notes,omitempty"` // Human-readable note for the caller
}
