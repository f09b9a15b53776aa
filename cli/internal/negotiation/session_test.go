package negotiation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	pion "github.com/pion/webrtc/v4"
)

func TestSessionStartAcquisitionFailure(t *testing.T) {
	s, ch, tf, media := newTestSession(t, "x")
	media.err = errors.New("no camera")

	err := s.Start(context.Background())
	if !IsKind(err, ErrAcquisition) {
		t.Fatalf("Start() error = %v, want acquisition error", err)
	}
	snap := s.Snapshot()
	if snap.State != StateBootstrap || snap.Role != RoleUnassigned {
		t.Errorf("after failed start: state=%s role=%s, want bootstrap/unassigned", snap.State, snap.Role)
	}
	if tf.count() != 0 {
		t.Errorf("transport built despite acquisition failure")
	}

	mustProcess(t, s, PeerJoined{Participant: "y"})
	if len(ch.kinds()) != 0 {
		t.Errorf("published %v from bootstrap phase", ch.kinds())
	}
}

func TestSessionInitiator(t *testing.T) {
	s, ch, tf, _ := newTestSession(t, "x")
	mustProcess(t, s, startEvent{})
	if got := s.Snapshot().State; got != StateNew {
		t.Fatalf("state after start = %s, want new", got)
	}

	mustProcess(t, s, PeerJoined{Participant: "y"})
	snap := s.Snapshot()
	if snap.Role != RoleInitiator || snap.State != StateHaveLocalOffer {
		t.Fatalf("after peer joined: role=%s state=%s", snap.Role, snap.State)
	}
	if got := ch.kinds(); !reflect.DeepEqual(got, []SignalKind{SignalOffer}) {
		t.Fatalf("published %v, want one offer", got)
	}
	if ch.published[0].From != "x" {
		t.Errorf("offer tagged %q, want x", ch.published[0].From)
	}

	// A second peer_joined after role assignment is ignored.
	mustProcess(t, s, PeerJoined{Participant: "z"})
	if ch.countKind(SignalOffer) != 1 {
		t.Errorf("re-offered on late peer_joined")
	}

	mustProcess(t, s, answerFrom("y"))
	snap = s.Snapshot()
	if snap.State != StateStable || !snap.RemoteApplied {
		t.Errorf("after answer: state=%s remoteApplied=%v", snap.State, snap.RemoteApplied)
	}
	if n := tf.last().count("SetRemoteDescription"); n != 1 {
		t.Errorf("SetRemoteDescription called %d times, want 1", n)
	}
}

func TestSessionResponderIdempotentOffer(t *testing.T) {
	s, ch, tf, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})

	mustProcess(t, s, offerFrom("x"))
	mustProcess(t, s, offerFrom("x"))

	snap := s.Snapshot()
	if snap.State != StateStable || snap.Role != RoleResponder || snap.Peer != "x" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if n := tf.last().count("SetRemoteDescription"); n != 1 {
		t.Errorf("duplicate offer applied: SetRemoteDescription x%d", n)
	}
	if n := ch.countKind(SignalAnswer); n != 1 {
		t.Errorf("published %d answers, want 1", n)
	}

	// peer_joined after an offer was received must not trigger an offer.
	mustProcess(t, s, PeerJoined{Participant: "x"})
	if ch.countKind(SignalOffer) != 0 {
		t.Error("responder published an offer")
	}
}

func TestSessionDropsSelfOriginated(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{name: "offer", ev: offerFrom("x")},
		{name: "answer", ev: answerFrom("x")},
		{name: "candidate", ev: candidateFrom("x", "c1")},
		{name: "peer joined", ev: PeerJoined{Participant: "x"}},
		{name: "peer left", ev: PeerLeft{Participant: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ch, tf, _ := newTestSession(t, "x")
			mustProcess(t, s, startEvent{})
			before := s.Snapshot()

			mustProcess(t, s, tt.ev)

			if got := s.Snapshot(); got != before {
				t.Errorf("snapshot changed: %+v -> %+v", before, got)
			}
			if len(ch.kinds()) != 0 {
				t.Errorf("published %v", ch.kinds())
			}
			if tf.count() != 1 {
				t.Errorf("transport rebuilt")
			}
		})
	}
}

func TestSessionBuffersCandidatesUntilRemoteApplied(t *testing.T) {
	s, _, tf, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})

	for _, c := range []string{"c1", "c2", "c3"} {
		mustProcess(t, s, candidateFrom("x", c))
	}
	snap := s.Snapshot()
	if snap.Buffered != 3 || snap.RemoteApplied {
		t.Fatalf("before offer: buffered=%d remoteApplied=%v", snap.Buffered, snap.RemoteApplied)
	}
	if n := tf.last().count("AddCandidate"); n != 0 {
		t.Fatalf("AddCandidate called %d times before remote description", n)
	}

	mustProcess(t, s, offerFrom("x"))
	mustProcess(t, s, candidateFrom("x", "c4"))

	want := []string{"c1", "c2", "c3", "c4"}
	if got := tf.last().addedCandidates(); !reflect.DeepEqual(got, want) {
		t.Errorf("applied candidates = %v, want %v", got, want)
	}
	snap = s.Snapshot()
	if snap.Buffered != 0 || snap.AppliedCandidates != 4 {
		t.Errorf("after drain: buffered=%d applied=%d", snap.Buffered, snap.AppliedCandidates)
	}
}

func TestSessionDrainFailuresAreNotFatal(t *testing.T) {
	s, _, tf, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})
	mustProcess(t, s, candidateFrom("x", "bad"))
	mustProcess(t, s, candidateFrom("x", "good"))

	tf.last().failNext("AddCandidate")
	mustProcess(t, s, offerFrom("x"))

	snap := s.Snapshot()
	if snap.State != StateStable {
		t.Fatalf("state = %s, want stable", snap.State)
	}
	if snap.FailedCandidates != 1 || snap.AppliedCandidates != 1 {
		t.Errorf("failed=%d applied=%d, want 1/1", snap.FailedCandidates, snap.AppliedCandidates)
	}

	tf.last().failNext("AddCandidate")
	err := s.Process(context.Background(), candidateFrom("x", "late"))
	if !IsKind(err, ErrCapability) {
		t.Errorf("late candidate failure = %v, want capability error", err)
	}
	if got := s.Snapshot().State; got != StateStable {
		t.Errorf("state after candidate failure = %s, want stable", got)
	}
}

func TestSessionCapabilityFailureKeepsState(t *testing.T) {
	s, ch, tf, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})
	mustProcess(t, s, candidateFrom("x", "c1"))

	tf.last().failNext("CreateAnswer")
	err := s.Process(context.Background(), offerFrom("x"))
	if !IsKind(err, ErrCapability) {
		t.Fatalf("error = %v, want capability error", err)
	}
	snap := s.Snapshot()
	if snap.State != StateNew || snap.Role != RoleUnassigned || snap.RemoteApplied || snap.Buffered != 1 {
		t.Fatalf("after failure: %+v", snap)
	}
	if ch.countKind(SignalAnswer) != 0 {
		t.Fatal("answer published despite failure")
	}

	mustProcess(t, s, offerFrom("x"))
	if got := s.Snapshot().State; got != StateStable {
		t.Errorf("state after replay = %s, want stable", got)
	}
}

func TestSessionChannelFailureKeepsState(t *testing.T) {
	s, ch, _, _ := newTestSession(t, "x")
	mustProcess(t, s, startEvent{})

	ch.failNext = errors.New("socket closed")
	err := s.Process(context.Background(), PeerJoined{Participant: "y"})
	if !IsKind(err, ErrChannel) {
		t.Fatalf("error = %v, want channel error", err)
	}
	snap := s.Snapshot()
	if snap.State != StateNew || snap.Role != RoleUnassigned {
		t.Fatalf("after failure: state=%s role=%s", snap.State, snap.Role)
	}

	mustProcess(t, s, PeerJoined{Participant: "y"})
	if got := s.Snapshot().State; got != StateHaveLocalOffer {
		t.Errorf("state after replay = %s, want have-local-offer", got)
	}
}

func TestSessionGlare(t *testing.T) {
	tests := []struct {
		name         string
		self, remote ParticipantID
		wantState    State
		wantRole     Role
		wantRollback int
		wantAnswers  int
	}{
		{name: "smaller id yields", self: "a", remote: "b", wantState: StateStable, wantRole: RoleResponder, wantRollback: 1, wantAnswers: 1},
		{name: "larger id keeps offer", self: "c", remote: "b", wantState: StateHaveLocalOffer, wantRole: RoleInitiator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ch, tf, _ := newTestSession(t, tt.self)
			mustProcess(t, s, startEvent{})
			mustProcess(t, s, PeerJoined{Participant: tt.remote})
			mustProcess(t, s, offerFrom(tt.remote))

			snap := s.Snapshot()
			if snap.State != tt.wantState || snap.Role != tt.wantRole {
				t.Errorf("state=%s role=%s, want %s/%s", snap.State, snap.Role, tt.wantState, tt.wantRole)
			}
			if n := tf.last().count("Rollback"); n != tt.wantRollback {
				t.Errorf("Rollback x%d, want %d", n, tt.wantRollback)
			}
			if n := ch.countKind(SignalAnswer); n != tt.wantAnswers {
				t.Errorf("answers published = %d, want %d", n, tt.wantAnswers)
			}
		})
	}
}

func TestSessionGuards(t *testing.T) {
	s, _, tf, _ := newTestSession(t, "x")
	mustProcess(t, s, startEvent{})

	// Answer without a local offer.
	mustProcess(t, s, answerFrom("y"))
	if got := s.Snapshot().State; got != StateNew {
		t.Fatalf("state = %s after stray answer, want new", got)
	}
	if n := tf.last().count("SetRemoteDescription"); n != 0 {
		t.Fatalf("stray answer applied")
	}

	// Answer-typed description delivered as an offer.
	mustProcess(t, s, OfferReceived{Description: answerFrom("y").Description})
	if got := s.Snapshot().State; got != StateNew {
		t.Errorf("state = %s after mistyped offer, want new", got)
	}
}

func TestSessionStateMonotonic(t *testing.T) {
	s, _, _, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})

	var seen []State
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range s.Updates() {
			if len(seen) == 0 || seen[len(seen)-1] != snap.State {
				seen = append(seen, snap.State)
			}
			if snap.State == StateStable {
				return
			}
		}
	}()

	mustProcess(t, s, offerFrom("x"))
	mustProcess(t, s, offerFrom("x"))
	mustProcess(t, s, answerFrom("x"))
	mustProcess(t, s, PeerJoined{Participant: "z"})
	<-done

	order := map[State]int{StateBootstrap: 0, StateNew: 1, StateHaveRemoteOffer: 2, StateStable: 3}
	for i := 1; i < len(seen); i++ {
		if order[seen[i]] < order[seen[i-1]] {
			t.Fatalf("state went backwards: %v", seen)
		}
	}
	if got := s.Snapshot().State; got != StateStable {
		t.Errorf("final state = %s, want stable", got)
	}
}

func TestSessionLocalCandidates(t *testing.T) {
	s, ch, tf, _ := newTestSession(t, "x")
	mustProcess(t, s, startEvent{})
	mustProcess(t, s, PeerJoined{Participant: "y"})

	old := tf.last()
	old.emitCandidate(Candidate{Candidate: "host"})
	waitFor(t, "candidate publish", func() bool { return ch.countKind(SignalCandidate) == 1 })

	mustProcess(t, s, resetEvent{})

	// Callbacks from the replaced transport are dropped.
	old.emitCandidate(Candidate{Candidate: "stale"})
	old.emitState(pion.PeerConnectionStateFailed)
	tf.last().emitCandidate(Candidate{Candidate: "fresh"})
	waitFor(t, "fresh candidate", func() bool { return ch.countKind(SignalCandidate) == 2 })

	for _, sig := range ch.published {
		if sig.Kind == SignalCandidate && sig.Candidate.Candidate == "stale" {
			t.Error("published candidate from a replaced transport")
		}
	}
	if got := s.Snapshot().Connection; got == pion.PeerConnectionStateFailed {
		t.Error("connection state taken from a replaced transport")
	}
}

func TestSessionConnectionFailureKeepsStable(t *testing.T) {
	s, _, tf, _ := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})
	mustProcess(t, s, offerFrom("x"))

	tf.last().emitState(pion.PeerConnectionStateFailed)
	waitFor(t, "connection state", func() bool {
		return s.Snapshot().Connection == pion.PeerConnectionStateFailed
	})
	if got := s.Snapshot().State; got != StateStable {
		t.Errorf("state = %s, want stable", got)
	}
}

func TestSessionReset(t *testing.T) {
	t.Run("initiator re-offers", func(t *testing.T) {
		s, ch, tf, media := newTestSession(t, "x")
		mustProcess(t, s, startEvent{})
		mustProcess(t, s, PeerJoined{Participant: "y"})
		first := tf.last()

		if err := s.Reset(context.Background()); err != nil {
			t.Fatalf("Reset() = %v", err)
		}
		snap := s.Snapshot()
		if snap.State != StateHaveLocalOffer || snap.Role != RoleInitiator {
			t.Errorf("after reset: state=%s role=%s", snap.State, snap.Role)
		}
		if !first.isClosed() || tf.count() != 2 {
			t.Errorf("old transport closed=%v, transports built=%d", first.isClosed(), tf.count())
		}
		if ch.countKind(SignalOffer) != 2 {
			t.Errorf("offers published = %d, want 2", ch.countKind(SignalOffer))
		}
		if media.acquired != 1 {
			t.Errorf("media acquired %d times, want 1", media.acquired)
		}
	})

	t.Run("peer left clears role", func(t *testing.T) {
		s, _, _, _ := newTestSession(t, "y")
		mustProcess(t, s, startEvent{})
		mustProcess(t, s, candidateFrom("x", "c1"))
		mustProcess(t, s, offerFrom("x"))

		mustProcess(t, s, PeerLeft{Participant: "x"})
		snap := s.Snapshot()
		if snap.State != StateNew || snap.Role != RoleUnassigned || snap.Peer != "" || snap.RemoteApplied {
			t.Fatalf("after peer left: %+v", snap)
		}

		mustProcess(t, s, PeerJoined{Participant: "z"})
		if got := s.Snapshot(); got.Role != RoleInitiator || got.Peer != "z" {
			t.Errorf("new peer: role=%s peer=%s", got.Role, got.Peer)
		}
	})

	t.Run("before start", func(t *testing.T) {
		s, _, _, _ := newTestSession(t, "x")
		if err := s.Reset(context.Background()); !IsKind(err, ErrNotStarted) {
			t.Errorf("Reset() = %v, want not started", err)
		}
	})
}

func TestSessionClose(t *testing.T) {
	s, _, tf, media := newTestSession(t, "y")
	mustProcess(t, s, startEvent{})
	mustProcess(t, s, candidateFrom("x", "c1"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	snap := s.Snapshot()
	if snap.State != StateClosed || snap.Buffered != 0 {
		t.Errorf("after close: state=%s buffered=%d", snap.State, snap.Buffered)
	}
	if !tf.last().isClosed() {
		t.Error("transport not closed")
	}
	if media.handle.releases() != 1 {
		t.Errorf("media released %d times, want 1", media.handle.releases())
	}
	if err := s.Process(context.Background(), offerFrom("x")); !IsKind(err, ErrSessionClosed) {
		t.Errorf("Process after close = %v, want session closed", err)
	}
}
