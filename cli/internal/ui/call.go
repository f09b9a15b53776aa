package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/callctl"
	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

const maxShownErrors = 3

type (
	snapshotMsg negotiation.Snapshot
	controlMsg  callctl.Event
	errorMsg    struct{ err error }
	tickMsg     time.Time
	sourceDone  struct{}
)

// CallSources feeds the call view. Nil channels are ignored.
type CallSources struct {
	Updates <-chan negotiation.Snapshot
	Errors  <-chan error
	Control <-chan callctl.Event
	Stats   func() []media.TrackStats
}

// CallModel is the live view of one call.
type CallModel struct {
	src      CallSources
	snap     negotiation.Snapshot
	peerName string
	stats    []media.TrackStats
	errs     []string
	spinner  spinner.Model
	started  time.Time
	hungUp   bool
}

func NewCallModel(initial negotiation.Snapshot, src CallSources) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		src:     src,
		snap:    initial,
		spinner: s,
		started: time.Now(),
	}
}

// HungUp reports whether the user ended the call from the view.
func (m *CallModel) HungUp() bool { return m.hungUp }

func (m *CallModel) Snapshot() negotiation.Snapshot { return m.snap }

func (m *CallModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tick()}
	if m.src.Updates != nil {
		cmds = append(cmds, listen(m.src.Updates, func(s negotiation.Snapshot) tea.Msg { return snapshotMsg(s) }))
	}
	if m.src.Errors != nil {
		cmds = append(cmds, listen(m.src.Errors, func(err error) tea.Msg { return errorMsg{err} }))
	}
	if m.src.Control != nil {
		cmds = append(cmds, listen(m.src.Control, func(ev callctl.Event) tea.Msg { return controlMsg(ev) }))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return sourceDone{}
		}
		return wrap(v)
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.hungUp = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.src.Stats != nil {
			m.stats = m.src.Stats()
		}
		return m, tick()

	case snapshotMsg:
		m.snap = negotiation.Snapshot(msg)
		if m.snap.State == negotiation.StateClosed {
			return m, tea.Quit
		}
		return m, listen(m.src.Updates, func(s negotiation.Snapshot) tea.Msg { return snapshotMsg(s) })

	case errorMsg:
		m.errs = append(m.errs, msg.err.Error())
		if len(m.errs) > maxShownErrors {
			m.errs = m.errs[len(m.errs)-maxShownErrors:]
		}
		return m, listen(m.src.Errors, func(err error) tea.Msg { return errorMsg{err} })

	case controlMsg:
		switch {
		case msg.Hello != nil:
			m.peerName = msg.Hello.Name
		case msg.Type == callctl.MessageTypeBye:
			m.peerName = ""
		}
		return m, listen(m.src.Control, func(ev callctl.Event) tea.Msg { return controlMsg(ev) })
	}
	return m, nil
}

func (m *CallModel) status() string {
	switch {
	case m.snap.State == negotiation.StateClosed:
		return ErrorStyle.Render("call ended")
	case m.snap.Connection == pion.PeerConnectionStateConnected:
		return SuccessStyle.Render("connected")
	case m.snap.Connection == pion.PeerConnectionStateFailed:
		return ErrorStyle.Render("connection failed")
	case m.snap.Peer == "" && m.snap.Role == negotiation.RoleUnassigned:
		return m.spinner.View() + " waiting for a peer"
	default:
		return m.spinner.View() + " negotiating"
	}
}

func (m *CallModel) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s %s %s\n\n", IconCall, TitleStyle.Render("Call"), BadgeStyle.Render(IconRoom+" "+string(m.snap.Room)))
	fmt.Fprintf(&b, "%s\n\n", m.status())

	peer := string(m.snap.Peer)
	if m.peerName != "" && m.peerName != peer {
		peer = fmt.Sprintf("%s (%s)", peer, m.peerName)
	}
	if peer == "" {
		peer = "-"
	}

	rows := [][2]string{
		{"You", string(m.snap.Self)},
		{"Peer", IconPeer + " " + peer},
		{"Role", m.snap.Role.String()},
		{"Signaling", m.snap.State.String()},
		{"Connection", IconConnect + " " + m.snap.Connection.String()},
		{"Candidates", fmt.Sprintf("%d sent, %d applied, %d buffered, %d failed",
			m.snap.SentCandidates, m.snap.AppliedCandidates, m.snap.Buffered, m.snap.FailedCandidates)},
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = LabelStyle.Render(r[0]) + " " + r[1]
	}
	b.WriteString(BoxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if len(m.stats) > 0 {
		b.WriteString("\n")
		for _, st := range m.stats {
			icon := IconAudio
			if st.Kind == "video" {
				icon = IconVideo
			}
			fmt.Fprintf(&b, "  %s %-6s %s %d packets, %s\n", icon, st.Kind, MutedStyle.Render(st.Codec), st.Packets, formatBytes(st.Bytes))
		}
	}

	if len(m.errs) > 0 {
		b.WriteString("\n")
		for _, e := range m.errs {
			fmt.Fprintf(&b, "  %s %s\n", WarningStyle.Render(IconWarning), MutedStyle.Render(e))
		}
	}

	fmt.Fprintf(&b, "\n%s  %s\n", MutedStyle.Render("Press q to hang up"), MutedStyle.Render(time.Since(m.started).Truncate(time.Second).String()))
	return b.String()
}

// RunCall blocks until the call ends, the user hangs up or ctx is done.
func RunCall(ctx context.Context, model *CallModel) error {
	_, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
