package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/rooms"
	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var joinCmd = &cobra.Command{
	Use:     "join CODE",
	Aliases: []string{"j"},
	Short:   "Join a relay room by code",
	Long: `Join an existing room using the code the other side shared.

Examples:
  officehours join OH-7KQ2
  officehours join oh-7kq2 --mode record`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func joinRoom(ctx context.Context, rawCode string) error {
	code := rooms.Normalize(rawCode)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	sess, err := session.DialRelay(ctx, cfg.RelayAddr(), opts)
	stopSpinner()
	if err != nil {
		return err
	}

	stopSpinner = ui.RunWaitingSpinner(fmt.Sprintf("Joining %s...", code))
	err = sess.JoinRoom(ctx, code)
	stopSpinner()
	if err != nil {
		sess.Close()
		switch {
		case errors.Is(err, session.ErrRoomNotFound):
			return fmt.Errorf("no room %s; check the code with the other side", code)
		case errors.Is(err, session.ErrRoomFull):
			return fmt.Errorf("room %s already has two participants", code)
		}
		return err
	}

	return runSession(sess)
}
