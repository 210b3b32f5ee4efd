// Package desktop drives top-level windows, menus and file dialogs through
// the operating system's accessibility interfaces. Only Windows is
// supported; on other platforms every operation returns ErrUnsupported.
package desktop

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by every operation on platforms without
// UI Automation.
var ErrUnsupported = errors.New("desktop automation is only available on Windows")

// ErrWindowNotFound is returned when no visible window matches a title fragment.
var ErrWindowNotFound = errors.New("window not found")

// FileDialog identifies a common Open/Save dialog. Titles and Buttons are
// alternatives for the localized captions; the first match is used.
type FileDialog struct {
	Titles  []string
	Buttons []string
}

// pollInterval is how often windows and controls are looked up while waiting.
const pollInterval = 200 * time.Millisecond
