package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvPrefix is prepended to a key when looking up its environment override.
const EnvPrefix = "EBPRO_MCP_"

// Config defines the application configuration read from config.json.
// The upper-case keys form the flat key/value document shared with the
// AHK helper scripts; each can be overridden by an environment variable.
type Config struct {
	// EbproDir is the EasyBuilder Pro installation directory.
	EbproDir string `json:"EBPRO_DIR"`
	// EbproExe is the executable name inside EbproDir (usually EBPro.exe).
	EbproExe string `json:"EBPRO_EXE"`
	// UtilityManagerExe is the Utility Manager executable shipped with EBPro.
	UtilityManagerExe string `json:"UTILITY_MANAGER_EXE"`
	// SimulatorWindowTitle is a fragment of the simulator window title.
	SimulatorWindowTitle string `json:"SIMULATOR_WINDOW_TITLE"`
	// EbproWindowTitle is a fragment of the main EBPro window title.
	EbproWindowTitle string `json:"EBPRO_WINDOW_TITLE"`
	// APIToken, when non-empty, must be supplied by every caller.
	APIToken string `json:"API_TOKEN"`
	// AutoHotkeyExe is the full path of the AutoHotkey interpreter used as
	// the GUI fallback.
	AutoHotkeyExe string `json:"AUTOHOTKEY_EXE"`

	// System holds engine-level technical parameters.
	System *SystemConfig `json:"system"`
	// Channels maps a channel identifier ("web", "telegram") to its raw
	// configuration payload.
	Channels map[string]jsoniter.RawMessage `json:"channels"`

	path string
}

// SystemConfig defines technical parameters that rarely need changing.
type SystemConfig struct {
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// LogFile receives a copy of every log line. Empty disables file logging.
	LogFile string `json:"log_file"`
	// WindowWaitMs bounds how long a window or dialog may take to appear.
	WindowWaitMs int `json:"window_wait_ms"`
	// LaunchTimeoutMs bounds how long a freshly started EBPro may take to
	// show its main window.
	LaunchTimeoutMs int `json:"launch_timeout_ms"`
	// SimSettleMs is the pause after starting offline simulation before the
	// action is reported as done.
	SimSettleMs int `json:"sim_settle_ms"`
	// FallbackDir holds the AutoHotkey scripts. Relative paths are resolved
	// against the directory of config.json.
	FallbackDir string `json:"fallback_dir"`
}

// WindowWait returns WindowWaitMs as a duration.
func (s *SystemConfig) WindowWait() time.Duration {
	return time.Duration(s.WindowWaitMs) * time.Millisecond
}

// LaunchTimeout returns LaunchTimeoutMs as a duration.
func (s *SystemConfig) LaunchTimeout() time.Duration {
	return time.Duration(s.LaunchTimeoutMs) * time.Millisecond
}

// SimSettle returns SimSettleMs as a duration.
func (s *SystemConfig) SimSettle() time.Duration {
	return time.Duration(s.SimSettleMs) * time.Millisecond
}

// DefaultSystemConfig returns a SystemConfig initialized with safe defaults.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		LogLevel:        "info",
		LogFile:         filepath.Join("logs", "ebpro_mcp.log"),
		WindowWaitMs:    10000,
		LaunchTimeoutMs: 20000,
		SimSettleMs:     5000,
		FallbackDir:     "gui_fallback",
	}
}

// Default returns a Config with every optional field populated.
func Default() *Config {
	return &Config{
		EbproExe:             "EBPro.exe",
		UtilityManagerExe:    "UtilityManagerEX.exe",
		SimulatorWindowTitle: "Simulator",
		EbproWindowTitle:     "EasyBuilder Pro",
		System:               DefaultSystemConfig(),
	}
}

// keys lists the overridable settings in document order.
func (c *Config) keys() []struct {
	name  string
	value *string
} {
	return []struct {
		name  string
		value *string
	}{
		{"EBPRO_DIR", &c.EbproDir},
		{"EBPRO_EXE", &c.EbproExe},
		{"UTILITY_MANAGER_EXE", &c.UtilityManagerExe},
		{"SIMULATOR_WINDOW_TITLE", &c.SimulatorWindowTitle},
		{"EBPRO_WINDOW_TITLE", &c.EbproWindowTitle},
		{"API_TOKEN", &c.APIToken},
		{"AUTOHOTKEY_EXE", &c.AutoHotkeyExe},
	}
}

// Load reads the JSON configuration file at path, applies defaults and the
// environment overlay, and validates the result. The returned Config is
// meant to be built once at startup and shared read-only.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file '%s' not found. please create one", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.path = path

	cfg.fillDefaults()
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults restores defaults for the parts the file left empty.
func (c *Config) fillDefaults() {
	def := DefaultSystemConfig()
	if c.System == nil {
		c.System = def
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = def.LogLevel
	}
	if c.System.WindowWaitMs <= 0 {
		c.System.WindowWaitMs = def.WindowWaitMs
	}
	if c.System.LaunchTimeoutMs <= 0 {
		c.System.LaunchTimeoutMs = def.LaunchTimeoutMs
	}
	if c.System.SimSettleMs < 0 {
		c.System.SimSettleMs = def.SimSettleMs
	}
	if c.System.FallbackDir == "" {
		c.System.FallbackDir = def.FallbackDir
	}
	if !filepath.IsAbs(c.System.FallbackDir) && c.path != "" {
		c.System.FallbackDir = filepath.Join(filepath.Dir(c.path), c.System.FallbackDir)
	}
	if len(c.Channels) == 0 {
		c.Channels = map[string]jsoniter.RawMessage{"web": jsoniter.RawMessage(`{}`)}
	}
}

// applyEnv overlays environment variables: EBPRO_MCP_<KEY> wins, then the
// bare <KEY>. A variable that is set but empty still overrides.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for _, k := range c.keys() {
		if v, ok := lookup(EnvPrefix + k.name); ok {
			*k.value = v
			continue
		}
		if v, ok := lookup(k.name); ok {
			*k.value = v
		}
	}
}

// Validate ensures the configuration contains all mandatory fields.
func (c *Config) Validate() error {
	if c.EbproExe == "" {
		return fmt.Errorf("mandatory 'EBPRO_EXE' setting is empty")
	}
	if c.EbproWindowTitle == "" {
		return fmt.Errorf("mandatory 'EBPRO_WINDOW_TITLE' setting is empty")
	}
	if c.SimulatorWindowTitle == "" {
		return fmt.Errorf("mandatory 'SIMULATOR_WINDOW_TITLE' setting is empty")
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// EbproPath returns the full path of the EBPro executable.
func (c *Config) EbproPath() string {
	return filepath.Join(c.EbproDir, c.EbproExe)
}

// Summary returns the settings safe to show to callers (no token).
func (c *Config) Summary() map[string]string {
	out := make(map[string]string)
	for _, k := range c.keys() {
		if k.name == "API_TOKEN" {
			continue
		}
		out[k.name] = *k.value
	}
	return out
}
