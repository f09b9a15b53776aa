package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/cli/internal/discovery"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find signaling servers on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		browser, err := discovery.NewBrowser(discovery.WithTimeout(discoverTimeout))
		if err != nil {
			return newError("discover servers", err)
		}

		sp := ui.RunWaitingSpinner("Browsing " + discovery.Service + "...")
		servers, err := browser.Browse(cmd.Context())
		sp.Stop()
		if err != nil {
			return newError("discover servers", err)
		}

		rows := make([]ui.ServerRow, len(servers))
		for i, s := range servers {
			rows[i] = ui.ServerRow{Instance: s.Instance, URL: s.URL(), Version: s.Version}
		}
		fmt.Fprintln(ui.Output, ui.ServersTable(rows))
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultBrowseTimeout, "how long to listen for announcements")
	rootCmd.AddCommand(discoverCmd)
}
