package ebpro

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"ebpro/pkg/api"
	"github.com/shirou/gopsutil/v3/process"
)

// Scripter runs an external interpreter with a script file.
type Scripter interface {
	Run(ctx context.Context, interpreter, script string) error
}

// ExecScripter runs scripts as child processes.
type ExecScripter struct{}

func (ExecScripter) Run(ctx context.Context, interpreter, script string) error {
	cmd := exec.CommandContext(ctx, interpreter, script)
	cmd.Dir = filepath.Dir(script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// invokeFallback runs the named AutoHotkey script from the fallback directory.
func (w *Worker) invokeFallback(ctx context.Context, name string) error {
	ahk := w.cfg.AutoHotkeyExe
	if ahk == "" || !fileExists(ahk) {
		return api.NewFailure(api.KindNotFound,
			"AutoHotkey не знайдено.",
			"Встановіть AutoHotkey та оновіть AUTOHOTKEY_EXE у config.json.")
	}

	script := filepath.Join(w.cfg.System.FallbackDir, name)
	if !fileExists(script) {
		return api.NewFailure(api.KindNotFound,
			fmt.Sprintf("AHK-скрипт %s не знайдено.", script),
			"Переконайтеся, що файли збережено разом із сервісом.")
	}

	slog.InfoContext(ctx, "Running AutoHotkey fallback", "script", script)
	if err := w.scripter.Run(ctx, ahk, script); err != nil {
		return api.NewFailure(api.KindInteraction,
			"AHK-скрипт завершився з помилкою.",
			fmt.Sprintf("Перевірте гарячі клавіші у %s.", name)).Wrap(err)
	}
	return nil
}

// ProcessRunning reports whether any process has an executable named
// exeName, compared case-insensitively.
func ProcessRunning(ctx context.Context, exeName string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(name, exeName) {
			return true, nil
		}
	}
	return false, nil
}
