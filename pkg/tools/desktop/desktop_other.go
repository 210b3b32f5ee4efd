//go:build !windows

package desktop

import (
	"context"
	"time"
)

// Desktop is the non-Windows stand-in: EBPro only runs on Windows, so every
// call reports ErrUnsupported.
type Desktop struct{}

// New returns the platform Desktop.
func New() *Desktop {
	return &Desktop{}
}

func (d *Desktop) Available() error { return ErrUnsupported }

func (d *Desktop) Launch(ctx context.Context, exePath string) error { return ErrUnsupported }

func (d *Desktop) FocusWindow(ctx context.Context, titleFragment string, wait time.Duration) error {
	return ErrUnsupported
}

func (d *Desktop) SelectMenu(ctx context.Context, titleFragment string, path []string, wait time.Duration) error {
	return ErrUnsupported
}

func (d *Desktop) FillFileDialog(ctx context.Context, dialog FileDialog, value string, wait time.Duration) error {
	return ErrUnsupported
}

func (d *Desktop) CaptureScreen(ctx context.Context, outPath string) error { return ErrUnsupported }
