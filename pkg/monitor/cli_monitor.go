package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// CLIMonitor implements the Monitor interface, printing every instruction
// and its outcome to the terminal.
type CLIMonitor struct {
	writer io.Writer // The output destination, typically os.Stdout.
	mu     sync.Mutex
}

// NewCLIMonitor creates a monitor writing to os.Stdout.
func NewCLIMonitor() *CLIMonitor {
	return NewWriterMonitor(os.Stdout)
}

// NewWriterMonitor creates a monitor writing to w.
func NewWriterMonitor(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "CLI Monitor Active - all EBPro commands will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage prints one line per event.
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	switch msg.MessageType {
	case TypeResult:
		displayMsg = fmt.Sprintf("[OK %s] %s", msg.RequestID, msg.Content)
	case TypeError:
		displayMsg = fmt.Sprintf("[FAIL %s] %s", msg.RequestID, msg.Content)
	default:
		displayMsg = fmt.Sprintf("[%s/%s %s] %s", msg.ChannelID, msg.Username, msg.RequestID, msg.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Use gray color for timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, displayMsg)
}
