// Package ebpro implements the EasyBuilder Pro actions on top of a desktop
// automation adapter, with AutoHotkey as the single fallback mechanism.
package ebpro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ebpro/pkg/api"
	"ebpro/pkg/config"
	"ebpro/pkg/tools"
	"ebpro/pkg/tools/desktop"
)

// Desktop is the window/menu/dialog automation surface the worker drives.
// *desktop.Desktop implements it.
type Desktop interface {
	Available() error
	Launch(ctx context.Context, exePath string) error
	FocusWindow(ctx context.Context, titleFragment string, wait time.Duration) error
	SelectMenu(ctx context.Context, titleFragment string, path []string, wait time.Duration) error
	FillFileDialog(ctx context.Context, dialog desktop.FileDialog, value string, wait time.Duration) error
	CaptureScreen(ctx context.Context, outPath string) error
}

var (
	_ Desktop          = (*desktop.Desktop)(nil)
	_ tools.Controller = (*Worker)(nil)
)

// ProcessProbe reports whether a process running exeName exists.
type ProcessProbe func(ctx context.Context, exeName string) (bool, error)

// Menu paths and dialogs of the English EBPro UI; dialog captions also
// accept the Ukrainian Windows shell.
var (
	menuOpen       = []string{"File", "Open..."}
	menuBuild      = []string{"Build", "Build"}
	menuSimulation = []string{"Tools", "Offline Simulation"}
	menuCompress   = []string{"File", "Compress"}

	openDialog = desktop.FileDialog{Titles: []string{"Open", "Відкрити"}, Buttons: []string{"Open", "Відкрити"}}
	saveDialog = desktop.FileDialog{Titles: []string{"Save As", "Зберегти як"}, Buttons: []string{"Save", "Зберегти"}}
)

// simulationScript is the AutoHotkey script that starts offline simulation
// through keyboard shortcuts.
const simulationScript = "simulate_offline.ahk"

// Worker implements tools.Controller for EasyBuilder Pro.
type Worker struct {
	cfg      *config.Config
	desktop  Desktop
	scripter Scripter
	probe    ProcessProbe
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customizes a Worker.
type Option func(*Worker)

// WithScripter replaces the AutoHotkey runner.
func WithScripter(s Scripter) Option {
	return func(w *Worker) { w.scripter = s }
}

// WithProcessProbe replaces the running-process check.
func WithProcessProbe(p ProcessProbe) Option {
	return func(w *Worker) { w.probe = p }
}

// NewWorker creates a Worker bound to cfg and d.
func NewWorker(cfg *config.Config, d Desktop, opts ...Option) *Worker {
	w := &Worker{
		cfg:      cfg,
		desktop:  d,
		scripter: ExecScripter{},
		probe:    ProcessRunning,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Capabilities returns every EBPro action.
func (w *Worker) Capabilities() []api.Action {
	return api.Actions()
}

// Execute dispatches req to the matching EBPro operation.
func (w *Worker) Execute(ctx context.Context, req tools.ActionRequest) (*tools.ActionResponse, error) {
	switch req.Action {
	case api.ActionOpenProject:
		return &tools.ActionResponse{}, w.OpenProject(ctx, req.Params[api.ParamPath])
	case api.ActionBuildExob:
		return &tools.ActionResponse{}, w.BuildExob(ctx)
	case api.ActionRunOfflineSim:
		return &tools.ActionResponse{}, w.RunOfflineSim(ctx)
	case api.ActionTakeScreenshot:
		out, err := w.TakeScreenshot(ctx, req.Params[api.ParamOut])
		return &tools.ActionResponse{File: out}, err
	case api.ActionPackEcmp:
		out, err := w.PackEcmp(ctx, req.Params[api.ParamOut])
		return &tools.ActionResponse{File: out}, err
	default:
		return nil, api.NewFailure(api.KindUnsupported,
			fmt.Sprintf("Дія %s ще не реалізована.", req.Action),
			"Оновіть Mini-MCP або зверніться до розробника для додавання функціоналу.")
	}
}

// ensureDesktop verifies the automation capability exists on this host.
func (w *Worker) ensureDesktop() error {
	if err := w.desktop.Available(); err != nil {
		if errors.Is(err, desktop.ErrUnsupported) {
			return api.NewFailure(api.KindUnavailable,
				"Керування вікнами доступне лише на Windows.",
				"Запустіть сервіс на Windows 10/11 з встановленою EasyBuilder Pro.").Wrap(err)
		}
		return api.NewFailure(api.KindUnavailable,
			"Засоби UI Automation недоступні у середовищі.",
			"Переконайтеся, що PowerShell та .NET UI Automation доступні у Windows.").Wrap(err)
	}
	return nil
}

// ensureRunning starts EBPro unless a process for it already exists.
func (w *Worker) ensureRunning(ctx context.Context) error {
	if err := w.ensureDesktop(); err != nil {
		return err
	}

	exe := w.cfg.EbproPath()
	if !fileExists(exe) {
		return api.NewFailure(api.KindNotFound,
			fmt.Sprintf("Файл %s не знайдено.", exe),
			"Укажіть правильний шлях EBPRO_DIR/EBPRO_EXE у config.json.")
	}

	running, err := w.probe(ctx, filepath.Base(exe))
	if err != nil {
		slog.WarnContext(ctx, "Process probe failed, assuming EBPro is not running", "error", err)
	}
	if running {
		slog.InfoContext(ctx, "EBPro already running, attaching to the existing process")
		return nil
	}

	slog.InfoContext(ctx, "EBPro not found among processes, starting a new instance", "exe", exe)
	if err := w.desktop.Launch(ctx, exe); err != nil {
		return api.NewFailure(api.KindInteraction,
			"Не вдалося стартувати EasyBuilder Pro.",
			"Запустіть EBPro вручну та повторіть запит, або перевірте права доступу.").Wrap(err)
	}
	if err := w.desktop.FocusWindow(ctx, w.cfg.EbproWindowTitle, w.cfg.System.LaunchTimeout()); err != nil {
		return api.NewFailure(api.KindInteraction,
			"Не вдалося стартувати EasyBuilder Pro.",
			"Запустіть EBPro вручну та повторіть запит, або перевірте права доступу.").Wrap(err)
	}
	slog.InfoContext(ctx, "EBPro started")
	return nil
}

// focus brings the window whose title contains fragment to the front.
func (w *Worker) focus(ctx context.Context, fragment string) error {
	if err := w.desktop.FocusWindow(ctx, fragment, w.cfg.System.WindowWait()); err != nil {
		return api.NewFailure(api.KindInteraction,
			fmt.Sprintf("Не знайдено вікно з назвою, що містить '%s'.", fragment),
			"Змініть SIMULATOR_WINDOW_TITLE/EBPRO_WINDOW_TITLE у config.json під свою локалізацію.").Wrap(err)
	}
	return nil
}

// clickMenu selects path (e.g. File -> Open...) in the main EBPro window.
func (w *Worker) clickMenu(ctx context.Context, path []string) error {
	title := w.cfg.EbproWindowTitle
	if err := w.focus(ctx, title); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Selecting menu", "path", strings.Join(path, "->"))
	if err := w.desktop.SelectMenu(ctx, title, path, w.cfg.System.WindowWait()); err != nil {
		return api.NewFailure(api.KindInteraction,
			"Не вдалося натиснути пункт меню.",
			"Для стрічкового інтерфейсу налаштуйте шлях меню або використайте AHK.").Wrap(err)
	}
	return nil
}

// OpenProject opens an *.emtp or *.ecmp project file in EBPro.
func (w *Worker) OpenProject(ctx context.Context, path string) error {
	if err := w.ensureRunning(ctx); err != nil {
		return err
	}
	project := filepath.Clean(path)
	if !fileExists(project) {
		return api.NewFailure(api.KindNotFound,
			fmt.Sprintf("Файл %s не знайдено.", project),
			"Перевірте шлях до проєкту або права доступу.")
	}

	if err := w.clickMenu(ctx, menuOpen); err != nil {
		return err
	}
	if err := w.desktop.FillFileDialog(ctx, openDialog, project, w.cfg.System.WindowWait()); err != nil {
		return api.NewFailure(api.KindInteraction,
			"Не вдалося взаємодіяти з діалогом відкриття файлу.",
			"Перевірте локалізацію кнопок діалогу відкриття та налаштуйте селектори.").Wrap(err)
	}
	slog.InfoContext(ctx, "Project opened", "path", project)
	return nil
}

// BuildExob compiles the open project into EXOB/CXOB through the Build menu.
func (w *Worker) BuildExob(ctx context.Context) error {
	if err := w.ensureRunning(ctx); err != nil {
		return err
	}
	if err := w.clickMenu(ctx, menuBuild); err != nil {
		return err
	}
	slog.InfoContext(ctx, "EXOB build triggered")
	return nil
}

// RunOfflineSim starts offline simulation through the Tools menu. A
// recoverable menu failure is retried once through the AutoHotkey script.
func (w *Worker) RunOfflineSim(ctx context.Context) error {
	if err := w.ensureRunning(ctx); err != nil {
		return err
	}

	err := w.clickMenu(ctx, menuSimulation)
	if err == nil {
		slog.InfoContext(ctx, "Offline simulation started from the menu")
		return w.sleep(ctx, w.cfg.System.SimSettle())
	}

	f, ok := api.AsFailure(err)
	if !ok || !f.Recoverable() {
		return err
	}
	slog.WarnContext(ctx, "Could not start simulation from the menu, trying AutoHotkey fallback", "error", err)
	return w.invokeFallback(ctx, simulationScript)
}

// TakeScreenshot focuses the simulator window and saves the screen to out.
func (w *Worker) TakeScreenshot(ctx context.Context, out string) (string, error) {
	if err := w.ensureDesktop(); err != nil {
		return "", err
	}
	if err := w.focus(ctx, w.cfg.SimulatorWindowTitle); err != nil {
		return "", err
	}

	output := filepath.Clean(out)
	if err := ensureParentDir(output); err != nil {
		return "", err
	}
	if err := w.desktop.CaptureScreen(ctx, output); err != nil {
		return "", api.NewFailure(api.KindInteraction,
			"Не вдалося зняти скріншот.",
			"Перевірте права на запис та доступність System.Drawing.").Wrap(err)
	}
	slog.InfoContext(ctx, "Screenshot saved", "path", output)
	return output, nil
}

// PackEcmp runs File -> Compress and saves the *.ecmp archive to out.
func (w *Worker) PackEcmp(ctx context.Context, out string) (string, error) {
	if err := w.ensureRunning(ctx); err != nil {
		return "", err
	}
	if err := w.clickMenu(ctx, menuCompress); err != nil {
		return "", err
	}

	output := filepath.Clean(out)
	if err := ensureParentDir(output); err != nil {
		return "", err
	}
	if err := w.desktop.FillFileDialog(ctx, saveDialog, output, w.cfg.System.WindowWait()); err != nil {
		return "", api.NewFailure(api.KindInteraction,
			"Не вдалося завершити пакування у ECMP.",
			"Перевірте локалізацію діалогу 'Save As' та підлаштуйте селектори.").Wrap(err)
	}
	slog.InfoContext(ctx, "Project packed into ECMP", "path", output)
	return output, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return api.NewFailure(api.KindNotFound,
			fmt.Sprintf("Не вдалося створити теку %s.", filepath.Dir(path)),
			"Перевірте шлях збереження та права на запис.").Wrap(err)
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
