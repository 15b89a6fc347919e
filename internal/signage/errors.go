package signage

import (
	"errors"
	"fmt"
)

// ErrBadCommand is returned for controller commands that cannot be parsed.
var ErrBadCommand = errors.New("bad command")

// StoreError reports that a store read or write failed during an update.
// The session's state is left as it was before the update.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError reports that a message could not be handed to a session's
// sink. The broadcaster treats it as a disconnect.
type DeliveryError struct {
	SessionID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.SessionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
