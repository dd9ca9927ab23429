package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/session"
	"github.com/matthannam-fart/office-hours/internal/ui"
)

var callCmd = &cobra.Command{
	Use:   "call HOST",
	Short: "Call a peer directly on the LAN",
	Long: `Dial a peer's control port directly, without the relay. The peer must be
running 'officehours open'.

Examples:
  officehours call 192.168.1.42
  officehours call studio.local:50000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callPeer(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func callPeer(ctx context.Context, target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	// A bare name first tries the manual address book from OH_PEERS.
	addr := target
	if resolved, ok := addressBook().Resolve(target); ok {
		addr = resolved
	}
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(cfg.ControlPort))
	}

	stopSpinner := ui.RunConnectionSpinner(fmt.Sprintf("Calling %s...", addr))
	sess, err := session.DialDirect(ctx, addr, 0, opts)
	stopSpinner()
	if err != nil {
		return err
	}

	return runSession(sess)
}
