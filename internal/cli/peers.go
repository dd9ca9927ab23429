package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var peersCmd = &cobra.Command{
	Use:     "peers",
	Aliases: []string{"who"},
	Short:   "List users currently registered on the relay",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPeers(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
}

func listPeers(ctx context.Context) error {
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

	// The first broadcast arrives right after registration.
	timeout := time.After(10 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("relay did not send a user list")
		case ev := <-presence.Events():
			if ev.Kind != session.PresenceUsers {
				continue
			}
			rows := make([]ui.PeerRow, 0, len(ev.Users))
			for _, u := range ev.Users {
				if u.UserID == opts.UserID {
					continue
				}
				rows = append(rows, ui.PeerRow{Name: u.Name, ID: u.UserID, Mode: u.Mode})
			}
			for _, p := range addressBook().Peers() {
				rows = append(rows, ui.PeerRow{Name: p.Name, Addr: p.Addr})
			}
			ui.RenderPeerTable(rows)
			return nil
		}
	}
}
