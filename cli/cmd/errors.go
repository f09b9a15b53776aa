package cmd

import "fmt"

// opError prefixes a failure with the step that failed.
type opError struct {
	Op  string
	Err error
}

func (e *opError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *opError) Unwrap() error { return e.Err }

func newError(op string, err error) error {
	return &opError{Op: op, Err: err}
}
