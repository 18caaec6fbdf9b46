package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nwws-bridge/nwws-bridge/internal/config"
	"github.com/nwws-bridge/nwws-bridge/internal/supervisor"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv)
	setupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Error().Err(err).Msg("configuration error")
		os.Exit(1)
	}

	log.Info().
		Str("server", cfg.XMPP.Server).
		Strs("enabled_handlers", cfg.EnabledHandlers).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("starting nwws-bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := supervisor.New(cfg).Run(ctx); err != nil {
		log.Error().Err(err).Msg("fatal error, shutting down")
		os.Exit(1)
	}

	log.Info().Msg("nwws-bridge stopped")
}

func setupLogging(level, file string) {
	var writer io.Writer
	if isatty.IsTerminal(os.Stdout.Fd()) {
		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		writer = consoleWriter
	} else {
		writer = os.Stdout
	}

	if file != "" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Error().Err(err).Str("log_file", file).Msg("failed to open log file, logging to stdout only")
		} else {
			writer = io.MultiWriter(writer, f)
		}
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
