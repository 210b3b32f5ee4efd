package monitor

import "time"

// Message types emitted to monitors.
const (
	TypeCommand = "COMMAND" // An instruction arrived
	TypeResult  = "RESULT"  // An action finished successfully
	TypeError   = "ERROR"   // An instruction failed
)

// MonitorMessage describes one step in the life of an instruction.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string
	ChannelID   string
	Username    string
	RequestID   string
	Content     string
}

// Monitor is notified of every instruction flowing through the gateway.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
