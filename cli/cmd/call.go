package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
)

const leaveTimeout = 3 * time.Second

var callCmd = &cobra.Command{
	Use:   "call [room-id]",
	Short: "Start or join a call",
	Long: `Join the given room, or create a new one when no room ID is given.
The first participant waits; the call is negotiated as soon as a second one joins.`,
	Example: `  warpcall call
  warpcall call brave-otter --audio greeting.ogg
  warpcall call --discover --name alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	self := negotiation.ParticipantID(cfg.Name)
	if self == "" {
		self = negotiation.ParticipantID(uuid.NewString())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cc, err := NewCallContext(ctx, cfg, self)
	if err != nil {
		return err
	}
	defer cc.Close()

	var room negotiation.RoomID
	if len(args) == 1 {
		room = negotiation.RoomID(args[0])
	} else {
		room, err = cc.Channel.CreateRoom(ctx)
		if err != nil {
			return newError("create room", err)
		}
		ui.NewRoomInfo(string(room), cfg.GetRoomLink(string(room))).Render()
	}

	session, err := cc.Coordinator.Join(ctx, room, self)
	if err != nil {
		return newError("join room", err)
	}
	started := time.Now()

	lostCh := make(chan error, 1)
	go func() {
		select {
		case err := <-cc.Lost():
			lostCh <- err
			cancel()
		case <-ctx.Done():
		}
	}()

	model := ui.NewCallModel(session.Snapshot(), ui.CallSources{
		Updates: session.Updates(),
		Errors:  session.Errors(),
		Control: cc.Control(),
		Stats:   cc.Sink.Stats,
	})
	uiErr := ui.RunCall(ctx, model)

	cc.SayBye()
	leaveCtx, cancelLeave := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
	defer cancelLeave()
	if err := cc.Coordinator.Leave(leaveCtx, room, self); err != nil && !negotiation.IsKind(err, negotiation.ErrNotStarted) {
		ui.PrintWarningf("leave room: %v", err)
	}

	fmt.Fprintln(ui.Output)
	ui.RenderCallSummary(session.Snapshot(), cc.Sink.Stats(), time.Since(started))

	if uiErr != nil {
		return uiErr
	}
	select {
	case err := <-lostCh:
		if !model.HungUp() {
			return newError("signaling", err)
		}
	default:
	}
	return nil
}
