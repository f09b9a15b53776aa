package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/dns"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
)

var roomsMaxPeers int

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the signaling server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rows, err := fetchRooms(cmd.Context(), cfg)
		if err != nil {
			return newError("list rooms", err)
		}
		fmt.Fprintln(ui.Output, ui.RoomsTable(rows, roomsMaxPeers))
		return nil
	},
}

func init() {
	roomsCmd.Flags().IntVar(&roomsMaxPeers, "max-peers", 2, "room capacity configured on the server")
	rootCmd.AddCommand(roomsCmd)
}

type roomListing struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// httpClient dials through the same resolver as the websocket client.
func httpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}
}

func fetchRooms(ctx context.Context, cfg *config.Config) ([]ui.RoomRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.RoomsURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	var listing []roomListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	rows := make([]ui.RoomRow, len(listing))
	for i, r := range listing {
		rows[i] = ui.RoomRow{ID: r.ID, Members: r.Members, Link: cfg.GetRoomLink(r.ID)}
	}
	return rows, nil
}
