package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
	"github.com/BioHazard786/Warpcall/cli/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "warpcall",
	Short:   "Peer-to-peer audio/video calls over WebRTC from the terminal",
	Long:    `Warpcall connects two participants directly with WebRTC. A small signaling server pairs them in a room; media then flows peer to peer, falling back to TURN when no direct path exists.`,
	Version: version.Version,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, newError("load config", err)
	}
	return cfg, nil
}
