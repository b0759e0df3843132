// CineBot is a conversational movie assistant.
//
// It serves chat sessions over HTTP and WebSocket, and offers a terminal
// chat and one-shot questions for local use. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	cinebot serve              Start the API server
//	cinebot chat               Chat in the terminal
//	cinebot ask <question>     Ask a single question
//	cinebot init [dir]         Write an example config.yaml
//	cinebot version            Print version and build information
//	cinebot -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nugget/cinebot/internal/api"
	"github.com/nugget/cinebot/internal/buildinfo"
	"github.com/nugget/cinebot/internal/config"
	"github.com/nugget/cinebot/internal/health"
	"github.com/nugget/cinebot/internal/observability"
	"github.com/nugget/cinebot/internal/session"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for document indexes and usage
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand because the
// flag package's globals get in the way of calling run from parallel
// tests.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: cinebot ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Current()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, f := range info.Fields() {
		fmt.Fprintf(w, "  %-12s %s\n", f[0]+":", f[1])
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "CineBot - conversational movie assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: cinebot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  chat         Chat in the terminal (type /help for commands)")
	fmt.Fprintln(w, "  ask          Ask a single question")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// configuredLogger builds the logger the config asks for. Level names
// were checked by config.Validate.
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// runAsk answers one question in blocking mode and prints the reply.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	svc, err := newServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, err := svc.factory.New("cli")
	if err != nil {
		return err
	}
	defer sess.Close()

	result, err := sess.Send(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(stdout, result.Content)
	return nil
}

// runChat starts an interactive terminal session.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	sess, err := svc.factory.New("terminal")
	if err != nil {
		return err
	}
	defer sess.Close()

	return chatREPL(ctx, stdin, stdout, sess)
}

// runServe starts the API server and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stdout, cfg)
	slog.SetDefault(logger)

	logger.Info("starting CineBot",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"context_window", cfg.Agent.ContextWindow,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.Init(ctx,
		cfg.Telemetry.ServiceName, buildinfo.Version, cfg.Telemetry.Environment, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()
	if cfg.Telemetry.OTLPEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	svc, err := newServices(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer svc.Close()

	monitor := health.NewMonitor(health.DefaultConfig(), logger, metrics)
	svc.watch(ctx, monitor)

	sessions := session.NewManager(svc.factory, cfg.Session.IdleTimeout)
	sessions.StartJanitor(ctx, time.Minute)
	defer sessions.CloseAll()

	server := api.NewServer(api.Config{
		Address:        cfg.Listen.Address,
		Port:           cfg.Listen.Port,
		RateLimit:      cfg.Listen.RateLimit,
		RateBurst:      cfg.Listen.RateBurst,
		AllowAnyOrigin: cfg.Listen.AllowAnyOrigin,
	}, sessions, reg, logger)
	server.SetDependencies(monitor)
	if svc.usage != nil {
		server.SetUsage(svc.usage)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	monitor.Wait()
	logger.Info("CineBot stopped")
	return nil
}
