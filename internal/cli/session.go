package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/discovery"
	"github.com/matthannam-fart/office-hours/internal/mode"
	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

// loadConfig resolves flags, environment, and defaults into the client
// configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		RelayHost:   flagRelayHost,
		RelayPort:   flagRelayPort,
		ControlPort: flagControlPort,
		AudioPort:   flagAudioPort,
		LogLevel:    flagLogLevel,
	})
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// sessionOptions assembles session.Options from persisted settings and
// flags. Flag values win over the settings file.
func sessionOptions(cfg *config.Config) (session.Options, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return session.Options{}, fmt.Errorf("load settings: %w", err)
	}
	name := flagName
	if name == "" {
		name = settings.Name()
	} else if name != settings.DisplayName {
		settings.DisplayName = name
		settings.Save()
	}

	m := mode.Live
	if flagMode != "" {
		if m, err = mode.Parse(flagMode); err != nil {
			return session.Options{}, err
		}
	}

	return session.Options{
		Name:   name,
		UserID: settings.UserID,
		Mode:   m,
		Logger: newLogger(cfg),
	}, nil
}

// addressBook folds the manual LAN peer list from OH_PEERS
// ("name=host:port,..." ) into a resolvable tracker.
func addressBook() *discovery.Tracker {
	t := discovery.NewTracker()
	if v := os.Getenv("OH_PEERS"); v != "" {
		t.Run(discovery.NewStaticSource(discovery.ParseList(v)...))
	}
	return t
}

// runSession hands an established session to the interactive UI and reports
// how it ended.
func runSession(sess *session.Session) error {
	recordings, err := ui.RunIntercom(sess, nil)

	if n := len(recordings); n > 0 {
		ui.PrintInfof("%d message(s) were recorded this session", n)
		for i, rec := range recordings {
			fmt.Printf("  %s #%d  %s, %d frames\n",
				ui.IconTape, i+1, rec.Duration().Round(time.Second), len(rec.Frames))
		}
	}

	switch {
	case err == nil:
		ui.PrintSuccess("Session ended")
		return nil
	case errors.Is(err, session.ErrPeerDisconnected):
		ui.PrintInfo("Peer hung up")
		return nil
	default:
		return err
	}
}
