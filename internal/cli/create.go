package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a relay room and wait for a peer",
	Long: `Create a room on the relay and print its code. The session starts as soon
as someone joins with the code.

Examples:
  officehours create
  officehours create --mode record`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRoom(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func createRoom(ctx context.Context) error {
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

	code, err := sess.CreateRoom(ctx)
	if err != nil {
		sess.Close()
		return err
	}
	ui.RenderRoomInfo(code)

	stopSpinner = ui.RunWaitingSpinner("Waiting for your peer to join...")
	err = sess.AwaitPeer(ctx)
	stopSpinner()
	if err != nil {
		sess.Close()
		return err
	}

	return runSession(sess)
}
