package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "EBPRO_DIR": "C:/EBpro",
  "EBPRO_EXE": "EBPro.exe",
  "UTILITY_MANAGER_EXE": "UtilityManagerEX.exe",
  "SIMULATOR_WINDOW_TITLE": "cMT Simulator",
  "EBPRO_WINDOW_TITLE": "EasyBuilder Pro",
  "API_TOKEN": "file-token",
  "AUTOHOTKEY_EXE": "C:/Program Files/AutoHotkey/AutoHotkey.exe",
  "system": {"log_level": "debug", "sim_settle_ms": 0}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_ReadsFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "C:/EBpro", cfg.EbproDir)
	assert.Equal(t, "cMT Simulator", cfg.SimulatorWindowTitle)
	assert.Equal(t, "file-token", cfg.APIToken)
	assert.Equal(t, filepath.Join("C:/EBpro", "EBPro.exe"), cfg.EbproPath())
	assert.Equal(t, path, cfg.Path())

	assert.Equal(t, "debug", cfg.System.LogLevel)
	assert.Equal(t, 0, cfg.System.SimSettleMs)
	assert.Equal(t, 10000, cfg.System.WindowWaitMs, "unspecified fields keep defaults")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "gui_fallback"), cfg.System.FallbackDir)
	assert.Contains(t, cfg.Channels, "web", "web channel is enabled by default")
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("EBPRO_MCP_API_TOKEN", "prefixed")
	t.Setenv("API_TOKEN", "bare")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.APIToken)
}

func TestLoad_BareEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("EBPRO_DIR", "D:/Weintek/EBpro")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "D:/Weintek/EBpro", cfg.EbproDir)
}

func TestLoad_EmptyEnvStillOverrides(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("EBPRO_MCP_API_TOKEN", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.APIToken)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{"EBPRO_DIR": "C:/EBpro"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "EBPro.exe", cfg.EbproExe)
	assert.Equal(t, "EasyBuilder Pro", cfg.EbproWindowTitle)
	assert.Equal(t, 20000, cfg.System.LaunchTimeoutMs)
	assert.Equal(t, 5000, cfg.System.SimSettleMs)
	assert.Equal(t, filepath.Join("logs", "ebpro_mcp.log"), cfg.System.LogFile)
}

func TestLoad_AbsoluteFallbackDirKept(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `{"system": {"fallback_dir": "`+filepath.ToSlash(dir)+`"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(dir), filepath.ToSlash(cfg.System.FallbackDir))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "not found")

	_, err = Load(writeConfig(t, `{not json`))
	assert.ErrorContains(t, err, "failed to parse")

	t.Setenv("EBPRO_MCP_EBPRO_WINDOW_TITLE", "")
	_, err = Load(writeConfig(t, sampleConfig))
	assert.ErrorContains(t, err, "EBPRO_WINDOW_TITLE")
}

func TestSummary_HidesToken(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	summary := cfg.Summary()
	assert.NotContains(t, summary, "API_TOKEN")
	assert.Equal(t, "C:/EBpro", summary["EBPRO_DIR"])
}

func TestWatchConfig_SignalsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := WatchConfig(ctx, path)
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"\n"), 0644))

	select {
	case _, ok := <-changed:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	cancel()
	for range changed {
	}
}
