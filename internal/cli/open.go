package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/config"
	"github.com/matthannam-fart/office-hours/internal/mode"
	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var flagNoRegister bool

var openCmd = &cobra.Command{
	Use:     "open",
	Aliases: []string{"o"},
	Short:   "Open office hours: accept calls from the LAN and the relay",
	Long: `Listen for direct calls on the LAN control port and, unless --no-register
is given, register on the relay's presence channel so other users can ring
you by name. Calls are taken one at a time.

Examples:
  officehours open
  officehours open --mode record
  officehours open --no-register`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return openOfficeHours(cmd.Context())
	},
}

func init() {
	openCmd.Flags().BoolVar(&flagNoRegister, "no-register", false, "skip relay presence registration, LAN only")
	rootCmd.AddCommand(openCmd)
}

func openOfficeHours(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	ln, err := session.Listen(":"+strconv.Itoa(cfg.ControlPort), cfg.AudioPort, opts)
	if err != nil {
		return err
	}
	defer ln.Close()
	ui.PrintInfof("Listening for LAN calls on %s", ln.Addr())

	incoming := make(chan *session.Session)
	go func() {
		for {
			sess, err := ln.Accept()
			if err != nil {
				close(incoming)
				return
			}
			incoming <- sess
		}
	}()

	var presence *session.PresenceClient
	if !flagNoRegister {
		presence, err = session.DialPresence(ctx, cfg.RelayAddr(), opts)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("relay unreachable, LAN only: %v", err))
		} else {
			defer presence.Close()
			ui.PrintInfof("Registered on %s as %q", cfg.RelayAddr(), opts.Name)
			go answerRings(ctx, cfg, opts, presence, incoming)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sess, ok := <-incoming:
			if !ok {
				return nil
			}
			if name := sess.PeerName(); name != "" {
				ui.PrintInfof("%s %s is calling", ui.IconPhone, name)
			}
			if err := runSession(sess); err != nil {
				ui.PrintError(err.Error())
			}
			ui.PrintInfo("Back to waiting for calls")
		}
	}
}

// answerRings handles brokered call requests from the presence channel:
// UNAVAILABLE turns callers away, anything else joins the reserved room and
// feeds the session to the main loop.
func answerRings(ctx context.Context, cfg *config.Config, opts session.Options, presence *session.PresenceClient, incoming chan<- *session.Session) {
	for ev := range presence.Events() {
		switch ev.Kind {
		case session.PresenceIncoming:
			if opts.Mode == mode.Unavailable {
				presence.Reject(ev.FromID)
				continue
			}
			ui.PrintInfof("%s %s is ringing, joining %s", ui.IconPhone, ev.FromName, ev.Code)
			if err := presence.Accept(ev.Code); err != nil {
				continue
			}
			sess, err := session.DialRelay(ctx, cfg.RelayAddr(), opts)
			if err != nil {
				continue
			}
			if err := sess.JoinRoom(ctx, ev.Code); err != nil {
				sess.Close()
				continue
			}
			select {
			case incoming <- sess:
			case <-ctx.Done():
				sess.Disconnect()
				return
			}
		case session.PresenceClosed:
			return
		}
	}
}
