package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrProtocolAnomaly = errors.New("protocol anomaly")
	ErrCapability      = errors.New("capability error")
	ErrAcquisition     = errors.New("media acquisition failed")
	ErrChannel         = errors.New("rendezvous channel error")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionExists   = errors.New("session already exists")
	ErrNotStarted      = errors.New("session not started")
)

// Error carries the operation and room that failed together with one of the
// sentinel kinds above.
type Error struct {
	Op      string
	Room    RoomID
	Kind    error
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Room != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Room)
	}
	switch {
	case e.Err != nil && e.Details != "":
		return fmt.Sprintf("%s: %v: %v (%s)", msg, e.Kind, e.Err, e.Details)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	case e.Details != "":
		return fmt.Sprintf("%s: %v (%s)", msg, e.Kind, e.Details)
	default:
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func WrapError(op string, kind error, details string) *Error {
	return &Error{Op: op, Kind: kind, Details: details}
}

func capabilityError(op string, room RoomID, err error) *Error {
	return &Error{Op: op, Room: room, Kind: ErrCapability, Err: err}
}

func channelError(op string, room RoomID, err error) *Error {
	return &Error{Op: op, Room: room, Kind: ErrChannel, Err: err}
}

func anomaly(op string, room RoomID, details string) *Error {
	return &Error{Op: op, Room: room, Kind: ErrProtocolAnomaly, Details: details}
}

// IsKind reports whether err was raised with the given sentinel kind.
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
