package signage

import "github.com/google/uuid"

// ControllerSession is a console that receives topology snapshots.
type ControllerSession struct {
	ID   string
	sink Sink
}

// NewControllerSession creates a controller session delivering to sink.
func NewControllerSession(sink Sink) *ControllerSession {
	return &ControllerSession{ID: uuid.NewString(), sink: sink}
}

// Push sends a snapshot. Controllers are never deduplicated.
func (c *ControllerSession) Push(u ControllerUpdate) error {
	if err := c.sink.Send(encode(u)); err != nil {
		return &DeliveryError{SessionID: c.ID, Err: err}
	}
	return nil
}
