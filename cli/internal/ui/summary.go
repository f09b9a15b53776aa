package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// CallSummaryView renders the end-of-call report.
func CallSummaryView(snap negotiation.Snapshot, stats []media.TrackStats, duration time.Duration) string {
	rows := [][]string{
		{"Room", string(snap.Room)},
		{"Peer", orDash(string(snap.Peer))},
		{"Role", snap.Role.String()},
		{"Duration", duration.Truncate(time.Second).String()},
		{"Candidates", fmt.Sprintf("%d sent / %d applied", snap.SentCandidates, snap.AppliedCandidates)},
	}
	for _, st := range stats {
		rows = append(rows, []string{
			"Received " + st.Kind,
			fmt.Sprintf("%d packets, %s", st.Packets, formatBytes(st.Bytes)),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderCallSummary(snap negotiation.Snapshot, stats []media.TrackStats, duration time.Duration) {
	fmt.Fprintln(Output, CallSummaryView(snap, stats, duration))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
