// Command voicebridge is the entry point for the realtime voice bridge
// server: it accepts telephony peer connections on the wire dialects in
// pkg/wireformat, relays audio and tool calls to a realtime AI peer, and
// tears everything down cleanly on SIGINT/SIGTERM, in the style of the
// teacher's cmd/root.go startup sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/birddigital/voicebridge/pkg/bridge"
	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/exampletools"
	"github.com/birddigital/voicebridge/pkg/ledger"
	"github.com/birddigital/voicebridge/pkg/registry"
	"github.com/birddigital/voicebridge/pkg/server"
	"github.com/birddigital/voicebridge/pkg/tasks"
	"github.com/birddigital/voicebridge/pkg/tools"
)

func main() {
	os.Exit(run())
}

func run() int {
	hostFlag := flag.String("host", "", "listen host, overrides HOST env")
	portFlag := flag.String("port", "", "listen port, overrides PORT env")
	logLevelFlag := flag.String("log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL env")
	flag.Parse()

	logLevel := firstNonEmpty(*logLevelFlag, os.Getenv("LOG_LEVEL"), "info")
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	host := firstNonEmpty(*hostFlag, os.Getenv("HOST"), "0.0.0.0")
	port := firstNonEmpty(*portFlag, os.Getenv("PORT"), "8080")

	apiKey := os.Getenv("AI_PEER_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "voicebridge: AI_PEER_API_KEY is required")
		return 1
	}
	aiEndpoint := firstNonEmpty(os.Getenv("AI_PEER_ENDPOINT"), "wss://api.openai.com/v1/realtime")

	addr := host + ":" + port
	if _, err := strconv.Atoi(port); err != nil {
		fmt.Fprintf(os.Stderr, "voicebridge: invalid port %q: %v\n", port, err)
		return 1
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(exampletools.NewWeatherLookup())

	var cdr *ledger.Ledger
	if dsn := os.Getenv("LEDGER_DATABASE_URL"); dsn != "" {
		startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		l, err := ledger.Open(startupCtx, dsn)
		cancel()
		if err != nil {
			logger.Error("voicebridge: failed to open call ledger", "error", err)
			return 1
		}
		cdr = l
		defer cdr.Close()
		logger.Info("voicebridge: call ledger enabled")
	} else {
		logger.Info("voicebridge: LEDGER_DATABASE_URL unset, call ledger disabled")
	}

	executor := tasks.New(30 * time.Second)
	defer executor.Close()

	reg := registry.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopSweep, err := reg.StartSweep(ctx, time.Minute)
	if err != nil {
		logger.Error("voicebridge: failed to start registry sweep", "error", err)
		return 1
	}
	defer stopSweep()

	srv := &server.Server{
		BridgeCtx: bridge.ServerContext{
			Logger:            logger,
			AIEndpoint:        aiEndpoint,
			AIAPIKey:          apiKey,
			Executor:          executor,
			ToolCallTimeout:   10 * time.Second,
			RateLimitCooldown: 2 * time.Second,
		},
		Registry:     reg,
		Tools:        toolRegistry,
		PublicWSHost: addr,
		SessionCfg:   defaultSessionConfig(toolRegistry),
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Mux(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("voicebridge: listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("voicebridge: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("voicebridge: server failed", "error", err)
			return 2
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("voicebridge: graceful shutdown failed", "error", err)
		return 2
	}

	logger.Info("voicebridge: goodbye")
	return 0
}

func defaultSessionConfig(reg *tools.Registry) server.SessionConfigFactory {
	return func(callerID, calledID string) call.SessionConfig {
		return call.SessionConfig{
			Model:        "gpt-realtime",
			Instructions: "You are a helpful voice assistant speaking with a caller over the phone.",
			Voice:        "alloy",
			Temperature:  0.8,
			ToolChoice:   "auto",
			Tools:        reg.Definitions(),
			VADEnabled:   true,
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: lvl}))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
