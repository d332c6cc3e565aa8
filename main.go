package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settings-bridge/pkg/channel"
	"settings-bridge/pkg/config"
	"settings-bridge/pkg/events"
	"settings-bridge/pkg/launcher"
	"settings-bridge/pkg/mcpsdk"
	"settings-bridge/pkg/metrics"
	"settings-bridge/pkg/notify"
	"settings-bridge/pkg/settings"
	"settings-bridge/pkg/transport"
)

// Config holds the application configuration.
type Config struct {
	Transport      string
	Host           string
	Port           int
	Channel        string
	AuthTokens     []string
	RateLimitRPS   float64
	RateLimitBurst int
	ConfigPath     string
	NotifyFallback bool
	LogFormat      string
	LogLevel       slog.Level
}

func main() {
	cfg := &Config{}
	var authTokens string
	flag.StringVar(&cfg.Transport, "transport", envOr("BRIDGE_TRANSPORT", "stdio"), "Transport to use: 'stdio', 'http' or 'mcp' (env: BRIDGE_TRANSPORT)")
	flag.StringVar(&cfg.Host, "host", "127.0.0.1", "Listen host for HTTP transport")
	flag.IntVar(&cfg.Port, "port", envInt("PORT", 8080), "Port for HTTP transport (env: PORT)")
	flag.StringVar(&cfg.Channel, "channel", "", "Channel name (default "+settings.ChannelName+")")
	flag.StringVar(&authTokens, "auth-tokens", os.Getenv("BRIDGE_AUTH_TOKENS"), "Comma-separated Bearer tokens for HTTP (env: BRIDGE_AUTH_TOKENS)")
	flag.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", 0, "Per-client requests per second for HTTP, 0 disables")
	flag.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", 0, "Per-client burst for HTTP rate limiting")
	flag.StringVar(&cfg.ConfigPath, "config", os.Getenv("BRIDGE_CONFIG"), "Path to YAML configuration file (env: BRIDGE_CONFIG)")
	flag.BoolVar(&cfg.NotifyFallback, "notify-fallback", false, "Show a desktop notification when general settings are opened instead of Wi-Fi settings")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: 'text' or 'json'")
	flag.String("log-level", "info", "Log level: 'debug', 'info', 'warn', 'error'")
	flag.Parse()

	cfg.AuthTokens = splitList(authTokens)

	if err := validateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("settings-bridge exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config) error {
	// --- Launcher and optional config file ---
	settingsLauncher := launcher.New()
	if cfg.ConfigPath != "" {
		file, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return err
		}
		applyConfig(cfg, file, settingsLauncher)
		if err := config.Watch(ctx, cfg.ConfigPath, func(f *config.File) {
			applyOverrides(f, settingsLauncher)
		}); err != nil {
			slog.Warn("Failed to watch config file", "path", cfg.ConfigPath, "error", err)
		}
	}
	if cfg.Channel == "" {
		cfg.Channel = settings.ChannelName
	}

	slog.Info("Starting settings-bridge",
		"version", "0.1.0",
		"transport", cfg.Transport,
		"channel", cfg.Channel,
	)

	// --- Observability ---
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry := channel.NewRegistry()
	bridgeMetrics := metrics.New(promRegistry, registry.Has)
	hub := events.NewHub(200)
	defer hub.Close()

	// --- Channel registry and bridge ---
	opts := []settings.Option{
		settings.WithPublisher(hub),
		settings.WithPublisher(bridgeMetrics),
	}
	if cfg.NotifyFallback {
		opts = append(opts, settings.WithNotifier(notify.NewDesktopNotifier()))
	}
	registry.Observe(bridgeMetrics.ObserveCall)
	settings.NewBridge(settingsLauncher, opts...).Register(registry, cfg.Channel)

	// --- Start Transport Listener ---
	switch cfg.Transport {
	case "http":
		return transport.RunHTTP(ctx, registry.Dispatch, transport.HTTPOptions{
			Host:           cfg.Host,
			Port:           cfg.Port,
			AuthTokens:     cfg.AuthTokens,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			Events:         hub,
			MCP:            mcpsdk.Handler(registry, cfg.Channel),
			Metrics:        promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		})
	case "mcp":
		return mcpsdk.RunStdio(ctx, registry, cfg.Channel)
	default:
		transport.RunStdio(ctx, registry.Dispatch)
		return nil
	}
}

// applyConfig merges the file into cfg; explicit flags win over file values.
func applyConfig(cfg *Config, file *config.File, l *launcher.CommandLauncher) {
	if cfg.Channel == "" {
		cfg.Channel = file.Channel
	}
	if file.NotifyFallback != nil && !flagSet("notify-fallback") {
		cfg.NotifyFallback = *file.NotifyFallback
	}
	applyOverrides(file, l)
}

func applyOverrides(file *config.File, l *launcher.CommandLauncher) {
	overrides, err := file.Overrides()
	if err != nil {
		slog.Warn("Ignoring invalid command overrides", "error", err)
		return
	}
	l.SetOverrides(overrides)
}

func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case "stdio", "http", "mcp":
	case "":
		return fmt.Errorf("--transport is required")
	default:
		return fmt.Errorf("--transport must be 'stdio', 'http' or 'mcp'")
	}
	if cfg.Transport == "http" && (cfg.Port <= 0 || cfg.Port > 65535) {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("--rate-limit-rps and --rate-limit-burst must not be negative")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("--log-format must be 'text' or 'json'")
	}
	return nil
}

func setupLogger(cfg *Config) {
	logLevelFlag := flag.Lookup("log-level").Value.String()
	logLevelMap := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	level, exists := logLevelMap[strings.ToLower(logLevelFlag)]
	if !exists {
		level = slog.LevelInfo
	}
	cfg.LogLevel = level

	// Stdout carries the protocol; logs always go to stderr.
	var logHandler slog.Handler
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	slog.SetDefault(slog.New(logHandler))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
