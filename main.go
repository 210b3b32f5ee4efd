// EBPro Mini-MCP: HTTP and Telegram front end that drives EasyBuilder Pro
// from short Ukrainian/English instructions.
//
// Usage:
//
//	ebpro-mcp serve --config config.json
//	ebpro-mcp parse 'зроби скріншот "D:/shots/sim.png"'
//	ebpro-mcp version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ebpro/pkg/api"
	"ebpro/pkg/channels"
	_ "ebpro/pkg/channels/autoload" // 自動註冊 Channels
	"ebpro/pkg/config"
	"ebpro/pkg/gateway"
	"ebpro/pkg/handler"
	"ebpro/pkg/monitor"
	"ebpro/pkg/nlp"
	"ebpro/pkg/tools"
	"ebpro/pkg/tools/desktop"
	"ebpro/pkg/tools/ebpro"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "ebpro-mcp",
		Short:         "EBPro Mini-MCP: automate EasyBuilder Pro from text instructions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", envOrDefault("EBPRO_MCP_CONFIG", "config.json"),
		"Path to config.json")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the configured channels (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var overrides []string
	parse := &cobra.Command{
		Use:   "parse <instruction>",
		Short: "Classify an instruction without touching EBPro",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, strings.Join(args, " "), overrides)
		},
	}
	parse.Flags().StringArrayVarP(&overrides, "arg", "a", nil, "Parameter override as key=value (repeatable)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ebpro-mcp %s (built %s)\n", api.Version, api.ResolvedBuildDate())
		},
	}

	root.AddCommand(serve, parse, version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	// --- 0. 讀取設定檔 ---
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	closeLog, err := monitor.SetupSlog(cfg.System.LogLevel, cfg.System.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	monitor.PrintBanner(api.Version)
	slog.Info("Configuration loaded", "path", cfg.Path(), "settings", cfg.Summary(), "token_required", cfg.APIToken != "")

	// --- 1. EBPro automation stack ---
	worker := ebpro.NewWorker(cfg, desktop.New())
	dispatcher := tools.NewDispatcher(worker)
	h := handler.NewCommandHandler(cfg, dispatcher)

	// --- 2. Gateway 初始化（使用 Builder 模式）---
	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithHandler(h).
		WithChannel(channels.LoadFromConfig(cfg)...).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	// 監聽系統信號
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changes := config.WatchConfig(ctx, cfg.Path())
	for {
		select {
		case <-ctx.Done():
			slog.Info("Received shutdown signal. Stopping services...")
			// 執行清理
			gw.StopAll()
			slog.Info("Bye!")
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			slog.Warn("config.json changed on disk; restart the service to apply it", "path", cfg.Path())
		}
	}
}

func runParse(cmd *cobra.Command, text string, overrides []string) error {
	args := make(map[string]string, len(overrides))
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --arg %q, expected key=value", kv)
		}
		args[k] = v
	}

	out := cmd.OutOrStdout()
	parsed, err := nlp.Parse(text, args)
	if err != nil {
		data, _ := json.MarshalIndent(map[string]any{"detail": api.Describe(err)}, "", "  ")
		fmt.Fprintln(out, string(data))
		return fmt.Errorf("instruction not understood")
	}
	data, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// envOrDefault returns the value of an env var, or fallback if unset.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
