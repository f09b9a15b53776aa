package ui

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RoomRow is one line of the rooms listing.
type RoomRow struct {
	ID      string
	Members int
	Link    string
}

// RoomsTable renders the active rooms of a signaling server.
func RoomsTable(rows []RoomRow, maxPeers int) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Room", "Members", "Link"})
	for i, r := range rows {
		members := fmt.Sprintf("%d/%d", r.Members, maxPeers)
		if r.Members >= maxPeers {
			members += " (full)"
		}
		t.AppendRow(table.Row{i + 1, r.ID, members, r.Link})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignCenter},
	})
	return t.Render()
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
		MutedStyle.Render("Share the room ID; the call starts when the peer joins."),
	)
	return SuccessBoxStyle.Render(content)
}

// Render prints the box to Output.
func (r *RoomInfo) Render() {
	fmt.Fprintln(Output, r.View())
}

// ServerRow is one discovered signaling server.
type ServerRow struct {
	Instance string
	URL      string
	Version  string
}

func ServersTable(rows []ServerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render(IconRadar + " No signaling servers found")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Instance", "URL", "Version"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Instance, r.URL, r.Version})
	}
	return t.Render()
}
