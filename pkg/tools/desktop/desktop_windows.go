//go:build windows

package desktop

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procIsIconic             = user32.NewProc("IsIconic")
	procShowWindow           = user32.NewProc("ShowWindow")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
	procKeybdEvent           = user32.NewProc("keybd_event")
)

const (
	swRestore      = 9
	vkMenu         = 0x12
	keyeventfKeyUp = 0x0002
)

type topWindow struct {
	hwnd  uintptr
	title string
}

// enumState collects windows for the single shared EnumWindows callback.
// Callbacks created by windows.NewCallback are never released, so one is
// created for the process and guarded by the mutex.
var enumState struct {
	sync.Mutex
	found []topWindow
}

var enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
	if visible, _, _ := procIsWindowVisible.Call(hwnd); visible == 0 {
		return 1
	}
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return 1
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	enumState.found = append(enumState.found, topWindow{hwnd: hwnd, title: windows.UTF16ToString(buf)})
	return 1
})

func topLevelWindows() []topWindow {
	enumState.Lock()
	defer enumState.Unlock()
	enumState.found = nil
	procEnumWindows.Call(enumCallback, 0)
	out := enumState.found
	enumState.found = nil
	return out
}

func findWindow(fragment string) (topWindow, bool) {
	needle := strings.ToLower(fragment)
	for _, w := range topLevelWindows() {
		if strings.Contains(strings.ToLower(w.title), needle) {
			return w, true
		}
	}
	return topWindow{}, false
}

// Desktop drives EBPro through user32 and .NET UI Automation.
type Desktop struct {
	powershell string
}

// New returns the platform Desktop.
func New() *Desktop {
	return &Desktop{powershell: "powershell"}
}

// Available checks that PowerShell is reachable; user32 is always present.
func (d *Desktop) Available() error {
	if _, err := exec.LookPath(d.powershell); err != nil {
		return fmt.Errorf("powershell not found: %w", err)
	}
	return nil
}

// Launch starts exePath detached from this process, in its own directory.
func (d *Desktop) Launch(ctx context.Context, exePath string) error {
	cmd := exec.Command(exePath)
	cmd.Dir = filepath.Dir(exePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", exePath, err)
	}
	slog.InfoContext(ctx, "Started process", "exe", exePath, "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// FocusWindow waits up to wait for a visible window whose title contains
// titleFragment (case-insensitive), restores it and brings it to the front.
func (d *Desktop) FocusWindow(ctx context.Context, titleFragment string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		if w, ok := findWindow(titleFragment); ok {
			if iconic, _, _ := procIsIconic.Call(w.hwnd); iconic != 0 {
				procShowWindow.Call(w.hwnd, swRestore)
			}
			// A synthetic ALT press lifts the foreground lock that otherwise
			// makes SetForegroundWindow only flash the taskbar button.
			procKeybdEvent.Call(vkMenu, 0, 0, 0)
			procKeybdEvent.Call(vkMenu, 0, keyeventfKeyUp, 0)
			if ok, _, _ := procSetForegroundWindow.Call(w.hwnd); ok == 0 {
				slog.WarnContext(ctx, "SetForegroundWindow refused", "title", w.title)
			}
			slog.DebugContext(ctx, "Window focused", "title", w.title)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: title contains %q", ErrWindowNotFound, titleFragment)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// SelectMenu expands every item of path in turn inside the window whose
// title contains titleFragment and invokes the last one. A last item that
// cannot be invoked is an error.
func (d *Desktop) SelectMenu(ctx context.Context, titleFragment string, path []string, wait time.Duration) error {
	script := renderMenuScript(titleFragment, path, wait)
	slog.InfoContext(ctx, "Selecting menu", "window", titleFragment, "path", strings.Join(path, " -> "))
	_, err := d.runPowerShell(ctx, script)
	return err
}

func renderMenuScript(titleFragment string, path []string, wait time.Duration) string {
	items := make([]string, 0, len(path))
	for _, p := range path {
		items = append(items, psQuote(p))
	}
	return fmt.Sprintf(uiaPrelude+menuScript, psQuote(titleFragment), strings.Join(items, ", "), wait.Milliseconds())
}

// FillFileDialog types value into the file-name box of the first dialog
// matching dialog.Titles and presses the matching button.
func (d *Desktop) FillFileDialog(ctx context.Context, dialog FileDialog, value string, wait time.Duration) error {
	script := fmt.Sprintf(uiaPrelude+dialogScript,
		psQuote(alternation(dialog.Titles)),
		psQuote(alternation(dialog.Buttons)),
		psQuote(value),
		wait.Milliseconds())
	slog.InfoContext(ctx, "Filling file dialog", "titles", dialog.Titles, "value", value)
	_, err := d.runPowerShell(ctx, script)
	return err
}

// CaptureScreen saves the primary display to outPath using System.Drawing.
// The image format follows the file extension (PNG by default).
func (d *Desktop) CaptureScreen(ctx context.Context, outPath string) error {
	format := "Png"
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".jpg", ".jpeg":
		format = "Jpeg"
	case ".bmp":
		format = "Bmp"
	}
	script := fmt.Sprintf(screenshotScript, psQuote(outPath), format)
	if _, err := d.runPowerShell(ctx, script); err != nil {
		return fmt.Errorf("failed to take screenshot via powershell: %w", err)
	}
	return nil
}

// runPowerShell executes script and returns its combined output. A non-zero
// exit status is reported together with the output for diagnostics.
func (d *Desktop) runPowerShell(ctx context.Context, script string) (string, error) {
	// Force PowerShell output to UTF8 so Cyrillic captions survive the pipe.
	utf8Script := "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; $OutputEncoding = [System.Text.Encoding]::UTF8; " + script

	cmd := exec.CommandContext(ctx, d.powershell, "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", utf8Script)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		slog.DebugContext(ctx, "PowerShell failed", "error", err, "output", output)
		if output != "" {
			return output, fmt.Errorf("%w: %s", err, output)
		}
		return output, err
	}
	return output, nil
}

// psQuote renders s as a PowerShell single-quoted literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// alternation builds a .NET regex matching any of the literal captions.
func alternation(captions []string) string {
	quoted := make([]string, 0, len(captions))
	for _, c := range captions {
		quoted = append(quoted, regexp.QuoteMeta(c))
	}
	return strings.Join(quoted, "|")
}

const uiaPrelude = `
Add-Type -AssemblyName UIAutomationClient
Add-Type -AssemblyName UIAutomationTypes
$AE = [System.Windows.Automation.AutomationElement]
$Scope = [System.Windows.Automation.TreeScope]
$Any = [System.Windows.Automation.Condition]::TrueCondition
$CT = [System.Windows.Automation.ControlType]
function New-Cond($prop, $value) { New-Object System.Windows.Automation.PropertyCondition($prop, $value) }
function Fail($code, $msg) { [Console]::Error.WriteLine($msg); exit $code }
`

// menuScript arguments: window title fragment, quoted menu items, wait (ms).
const menuScript = `
$title = %s
$path = @(%s)
$deadline = (Get-Date).AddMilliseconds(%d)

$win = $null
foreach ($w in $AE::RootElement.FindAll($Scope::Children, $Any)) {
  if ($w.Current.Name.IndexOf($title, [StringComparison]::OrdinalIgnoreCase) -ge 0) { $win = $w; break }
}
if ($null -eq $win) { Fail 2 "window not found: $title" }

# Steps after the first look inside the item just expanded and the open
# popup menus before the window itself, and never return the parent again:
# "Build -> Build" must not resolve to the menu-bar item twice.
function Find-MenuItem($name, $step, $parent) {
  $cond = New-Cond $AE::NameProperty $name
  if ($step -gt 0) {
    $item = $parent.FindFirst($Scope::Descendants, $cond)
    if ($null -ne $item) { return $item }
    $menus = New-Cond $AE::ControlTypeProperty $CT::Menu
    foreach ($popup in @($AE::RootElement.FindAll($Scope::Children, $menus)) + @($win.FindAll($Scope::Descendants, $menus))) {
      $item = $popup.FindFirst($Scope::Descendants, $cond)
      if ($null -ne $item) { return $item }
    }
  }
  foreach ($item in $win.FindAll($Scope::Descendants, $cond)) {
    if ($null -eq $parent -or -not [System.Windows.Automation.Automation]::Compare($item, $parent)) { return $item }
  }
  return $null
}

$last = $path.Count - 1
$parent = $null
for ($i = 0; $i -le $last; $i++) {
  $name = $path[$i]
  $item = Find-MenuItem $name $i $parent
  while ($null -eq $item) {
    if ((Get-Date) -gt $deadline) { Fail 3 "menu item not found: $name" }
    Start-Sleep -Milliseconds 200
    $item = Find-MenuItem $name $i $parent
  }
  $pattern = $null
  if ($i -eq $last) {
    # The final step is the command itself; expanding it would do nothing.
    if (-not $item.TryGetCurrentPattern([System.Windows.Automation.InvokePattern]::Pattern, [ref]$pattern)) {
      Fail 5 "menu command cannot be invoked: $name"
    }
    $pattern.Invoke()
  } elseif ($item.TryGetCurrentPattern([System.Windows.Automation.ExpandCollapsePattern]::Pattern, [ref]$pattern)) {
    $pattern.Expand()
  } elseif ($item.TryGetCurrentPattern([System.Windows.Automation.InvokePattern]::Pattern, [ref]$pattern)) {
    $pattern.Invoke()
  } else {
    Fail 4 "menu item cannot be activated: $name"
  }
  $parent = $item
  Start-Sleep -Milliseconds 300
}
`

// dialogScript arguments: title regex, button regex, value, wait (ms).
const dialogScript = `
$titles = %s
$buttons = %s
$value = %s
$deadline = (Get-Date).AddMilliseconds(%d)

function Find-Dialog {
  foreach ($top in $AE::RootElement.FindAll($Scope::Children, $Any)) {
    if ($top.Current.Name -match $titles) { return $top }
    foreach ($child in $top.FindAll($Scope::Children, (New-Cond $AE::ControlTypeProperty $CT::Window))) {
      if ($child.Current.Name -match $titles) { return $child }
    }
  }
  return $null
}

$dlg = Find-Dialog
while ($null -eq $dlg) {
  if ((Get-Date) -gt $deadline) { Fail 2 "dialog not found: $titles" }
  Start-Sleep -Milliseconds 200
  $dlg = Find-Dialog
}

$edit = $dlg.FindFirst($Scope::Descendants, (New-Object System.Windows.Automation.AndCondition(
  (New-Cond $AE::AutomationIdProperty '1148'), (New-Cond $AE::ControlTypeProperty $CT::Edit))))
if ($null -eq $edit) { $edit = $dlg.FindFirst($Scope::Descendants, (New-Cond $AE::ControlTypeProperty $CT::Edit)) }
if ($null -eq $edit) { Fail 3 "file name box not found" }
$edit.GetCurrentPattern([System.Windows.Automation.ValuePattern]::Pattern).SetValue($value)

$button = $null
foreach ($b in $dlg.FindAll($Scope::Descendants, (New-Cond $AE::ControlTypeProperty $CT::Button))) {
  if ($b.Current.Name -match "^($buttons)$") { $button = $b; break }
}
if ($null -eq $button) { Fail 4 "button not found: $buttons" }
$button.GetCurrentPattern([System.Windows.Automation.InvokePattern]::Pattern).Invoke()
`

// screenshotScript arguments: output path, System.Drawing.Imaging.ImageFormat name.
const screenshotScript = `
Add-Type -AssemblyName System.Windows.Forms
Add-Type -AssemblyName System.Drawing
$Screen = [System.Windows.Forms.Screen]::PrimaryScreen
$Bitmap = New-Object System.Drawing.Bitmap($Screen.Bounds.Width, $Screen.Bounds.Height)
$Graphics = [System.Drawing.Graphics]::FromImage($Bitmap)
$Graphics.CopyFromScreen($Screen.Bounds.Left, $Screen.Bounds.Top, 0, 0, $Bitmap.Size)
$Bitmap.Save(%s, [System.Drawing.Imaging.ImageFormat]::%s)
$Graphics.Dispose()
$Bitmap.Dispose()
`
