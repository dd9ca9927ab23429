package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/matthannam-fart/office-hours/internal/ui"
	"github.com/matthannam-fart/office-hours/internal/version"
)

var (
	flagRelayHost   string
	flagRelayPort   int
	flagControlPort int
	flagAudioPort   int
	flagLogLevel    string
	flagName        string
	flagMode        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "officehours",
	Short:   "Push-to-talk intercom for two people, over the LAN or a relay",
	Long: `Office Hours is a half-duplex voice intercom between two parties. A session
runs directly over the LAN when both ends can reach each other, or through a
public relay using a short room code when they cannot. Each side cycles
between LIVE, RECORD, and UNAVAILABLE: live audio plays as it arrives,
recorded audio lands on an answering-machine shelf, and unavailable turns
callers away.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRelayHost, "relay", "", "relay host (default from OH_RELAY_HOST)")
	pf.IntVar(&flagRelayPort, "relay-port", 0, "relay port")
	pf.IntVar(&flagControlPort, "control-port", 0, "local TCP port for direct sessions")
	pf.IntVar(&flagAudioPort, "audio-port", 0, "local UDP port for direct audio")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flagName, "name", "", "display name shown to peers")
	pf.StringVar(&flagMode, "mode", "", "starting mode (live, record, unavailable)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
