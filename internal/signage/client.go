package signage

import (
	"sync"

	"github.com/google/uuid"

	"multidisplay/pkg/versioned"
)

// Sink delivers serialized messages to one connection. Send must not block;
// an error means the connection is gone. Close releases the connection.
type Sink interface {
	Send(msg []byte) error
	Close()
}

// Stores groups the two stores a session update reads from.
type Stores struct {
	Templates   versioned.Store
	Assignments versioned.Store
}

// ClientSession tracks what one connected display is showing. Its fields
// are only touched inside Update, which is serialized per session.
type ClientSession struct {
	ID   string
	name string
	sink Sink

	mu        sync.Mutex
	template  string
	timestamp int64
	playing   bool
}

// NewClientSession creates a stopped session for the display name.
func NewClientSession(name string, sink Sink) *ClientSession {
	return &ClientSession{
		ID:   uuid.NewString(),
		name: name,
		sink: sink,
	}
}

// Name returns the display name given at connect time.
func (c *ClientSession) Name() string {
	return c.name
}

// State reports the template the display is playing and the timestamp of
// the last push. template is empty when stopped.
func (c *ClientSession) State() (template string, timestamp int64, playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.template, c.timestamp, c.playing
}

// Update brings the display in line with its current assignment and
// returns the action pushed, or "" when nothing needed to be sent.
//
// A display already playing the assigned template at a timestamp at least
// as new as the store's is left alone. An assignment whose template body
// does not exist is treated like no assignment.
func (c *ClientSession) Update(st Stores) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, assigned, err := st.Assignments.Get(c.name)
	if err != nil {
		return "", &StoreError{Op: "get assignment", Key: c.name, Err: err}
	}
	if !assigned {
		return c.stopLocked()
	}
	key := string(raw)

	// The timestamp is read before the body: a write racing in between
	// yields a newer body under an older stamp, which the write's own
	// fanout then re-pushes, never the reverse.
	ts, ok, err := st.Templates.Timestamp(key)
	if err != nil {
		return "", &StoreError{Op: "timestamp", Key: key, Err: err}
	}
	if !ok {
		return c.stopLocked()
	}
	if c.playing && c.template == key && c.timestamp >= ts {
		return "", nil
	}
	body, ok, err := st.Templates.Get(key)
	if err != nil {
		return "", &StoreError{Op: "get template", Key: key, Err: err}
	}
	if !ok {
		return c.stopLocked()
	}

	msg := encode(PlayMessage{
		Action:       ActionPlay,
		Timestamp:    ts,
		TemplateName: key,
		Template:     string(body),
	})
	if err := c.sink.Send(msg); err != nil {
		return "", &DeliveryError{SessionID: c.ID, Err: err}
	}
	c.template = key
	c.timestamp = ts
	c.playing = true
	return ActionPlay, nil
}

func (c *ClientSession) stopLocked() (string, error) {
	if !c.playing {
		c.template = ""
		c.timestamp = 0
		return "", nil
	}
	if err := c.sink.Send(encode(StopMessage{Action: ActionStop})); err != nil {
		return "", &DeliveryError{SessionID: c.ID, Err: err}
	}
	c.template = ""
	c.timestamp = 0
	c.playing = false
	return ActionStop, nil
}
