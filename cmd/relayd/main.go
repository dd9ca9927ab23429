package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/metrics"
	"github.com/matthannam-fart/office-hours/internal/relay"
	"github.com/matthannam-fart/office-hours/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	log := newLogger(cfg, *pretty)
	log.Info().
		Str("version", version.Version).
		Str("bind", cfg.BindAddr()).
		Str("http", cfg.HTTP.Address).
		Msg("starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.New(cfg, log, metrics.NewCollector())
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("relay exited")
	}
	log.Info().Msg("relay stopped")
}

func newLogger(cfg *config.Relay, pretty bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stderr)
	if pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Logger()
}
