//go:build !windows

package desktop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnsupportedPlatform(t *testing.T) {
	d := New()
	ctx := context.Background()

	assert.ErrorIs(t, d.Available(), ErrUnsupported)
	assert.ErrorIs(t, d.Launch(ctx, "EBPro.exe"), ErrUnsupported)
	assert.ErrorIs(t, d.FocusWindow(ctx, "EasyBuilder Pro", time.Second), ErrUnsupported)
	assert.ErrorIs(t, d.SelectMenu(ctx, "EasyBuilder Pro", []string{"Build", "Build"}, time.Second), ErrUnsupported)
	assert.ErrorIs(t, d.FillFileDialog(ctx, FileDialog{Titles: []string{"Open"}}, "a.emtp", time.Second), ErrUnsupported)
	assert.ErrorIs(t, d.CaptureScreen(ctx, "shot.png"), ErrUnsupported)
}
