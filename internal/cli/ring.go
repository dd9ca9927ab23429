package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var flagRingTimeout time.Duration

var ringCmd = &cobra.Command{
	Use:   "ring USER_ID",
	Short: "Ring an online user through the relay",
	Long: `Ask the relay to set up a call with another registered user. The relay
reserves a room; the session starts when the other side accepts.

Find user ids with 'officehours peers'.

Examples:
  officehours ring 3fa1b2c9
  officehours ring 3fa1b2c9 --timeout 2m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ringUser(cmd.Context(), args[0])
	},
}

func init() {
	ringCmd.Flags().DurationVar(&flagRingTimeout, "timeout", time.Minute, "how long to let it ring")
	rootCmd.AddCommand(ringCmd)
}

func ringUser(ctx context.Context, targetID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	presence, err := session.DialPresence(ctx, cfg.RelayAddr(), opts)
	stopSpinner()
	if err != nil {
		return err
	}
	defer presence.Close()

	if err := presence.ConnectTo(targetID, opts.Name); err != nil {
		return err
	}

	stopSpinner = ui.RunWaitingSpinner("Ringing...")
	defer stopSpinner()
	timeout := time.After(flagRingTimeout)

	for {
		select {
		case <-ctx.Done():
			presence.Cancel(targetID)
			return ctx.Err()
		case <-timeout:
			presence.Cancel(targetID)
			return fmt.Errorf("no answer from %s", targetID)
		case ev := <-presence.Events():
			switch ev.Kind {
			case session.PresenceProceed:
				return awaitAnswer(ctx, cfg, opts, presence, targetID, ev.Code, timeout)
			case session.PresenceRejected:
				return fmt.Errorf("%s declined the call", targetID)
			case session.PresenceError:
				return fmt.Errorf("relay: %s", ev.Message)
			case session.PresenceClosed:
				return fmt.Errorf("lost the relay connection")
			}
		}
	}
}

// awaitAnswer sits in the reserved room while the other side decides. A
// rejection or timeout interrupts the pending join.
func awaitAnswer(ctx context.Context, cfg *config.Config, opts session.Options, presence *session.PresenceClient, targetID, code string, timeout <-chan time.Time) error {
	sess, err := session.DialRelay(ctx, cfg.RelayAddr(), opts)
	if err != nil {
		return err
	}
	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	joined := make(chan error, 1)
	go func() { joined <- sess.JoinRoom(joinCtx, code) }()

	for {
		select {
		case err := <-joined:
			if err != nil {
				sess.Close()
				return err
			}
			return runSession(sess)
		case <-timeout:
			cancel()
			sess.Close()
			presence.Cancel(targetID)
			return fmt.Errorf("no answer from %s", targetID)
		case ev := <-presence.Events():
			switch ev.Kind {
			case session.PresenceRejected:
				cancel()
				sess.Close()
				return fmt.Errorf("%s declined the call", targetID)
			case session.PresenceError:
				cancel()
				sess.Close()
				return fmt.Errorf("relay: %s", ev.Message)
			}
		}
	}
}
