package signage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"multidisplay/pkg/versioned"
)

// Broadcaster applies mutations to the stores and pushes the results to the
// sessions they affect. Client pushes are deduplicated per session;
// controller pushes always carry the full snapshot.
type Broadcaster struct {
	stores   Stores
	registry *Registry
	log      zerolog.Logger

	// ctrlMu orders controller snapshots so every controller sees them in
	// the same sequence.
	ctrlMu sync.Mutex
}

// NewBroadcaster wires the template and assignment stores to a registry.
func NewBroadcaster(templates, assignments versioned.Store, registry *Registry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		stores:   Stores{Templates: templates, Assignments: assignments},
		registry: registry,
		log:      log.With().Str("component", "broadcaster").Logger(),
	}
}

// Registry returns the presence registry the broadcaster fans out over.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// Template returns the body stored under name.
func (b *Broadcaster) Template(name string) ([]byte, bool, error) {
	return b.stores.Templates.Get(name)
}

// State builds the snapshot controllers receive.
func (b *Broadcaster) State() (ControllerUpdate, error) {
	templates, err := b.stores.Templates.Keys()
	if err != nil {
		return ControllerUpdate{}, &StoreError{Op: "list templates", Err: err}
	}
	if templates == nil {
		templates = []string{}
	}
	assignments, err := b.stores.Assignments.Snapshot()
	if err != nil {
		return ControllerUpdate{}, &StoreError{Op: "snapshot assignments", Err: err}
	}
	clientTemplate := make(map[string]string, len(assignments))
	for client, tpl := range assignments {
		clientTemplate[client] = string(tpl)
	}
	return ControllerUpdate{
		Clients:        b.registry.ClientNames(),
		Templates:      templates,
		ClientTemplate: clientTemplate,
	}, nil
}

// ConnectClient registers a display, brings it up to date and tells the
// controllers about it.
func (b *Broadcaster) ConnectClient(name string, sink Sink) *ClientSession {
	c := NewClientSession(name, sink)
	b.registry.AddClient(c)
	b.log.Info().Str("client", name).Str("session", c.ID).Msg("client connected")
	b.updateClient(c)
	b.updateControllers()
	return c
}

// DisconnectClient unregisters a display. Only the first call for a session
// triggers a controller refresh.
func (b *Broadcaster) DisconnectClient(c *ClientSession) {
	if !b.registry.RemoveClient(c) {
		return
	}
	c.sink.Close()
	b.log.Info().Str("client", c.Name()).Str("session", c.ID).Msg("client disconnected")
	b.updateControllers()
}

// ConnectController registers a console and sends it the current snapshot.
func (b *Broadcaster) ConnectController(sink Sink) *ControllerSession {
	ctl := NewControllerSession(sink)

	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()
	b.registry.AddController(ctl)
	b.log.Info().Str("session", ctl.ID).Msg("controller connected")
	state, err := b.State()
	if err != nil {
		b.log.Error().Err(err).Msg("build controller snapshot")
		return ctl
	}
	if err := ctl.Push(state); err != nil {
		b.log.Warn().Err(err).Msg("controller delivery failed")
		b.dropController(ctl)
	}
	return ctl
}

// DisconnectController unregisters a console. Other sessions are unaffected.
func (b *Broadcaster) DisconnectController(ctl *ControllerSession) {
	if b.registry.RemoveController(ctl) {
		ctl.sink.Close()
		b.log.Info().Str("session", ctl.ID).Msg("controller disconnected")
	}
}

// WriteTemplate stores a template body and re-pushes it to every display
// assigned to it. A brand new template also refreshes the controllers so
// their template list stays complete.
func (b *Broadcaster) WriteTemplate(name string, body []byte) error {
	if err := versioned.ValidateKey(name); err != nil {
		return fmt.Errorf("template %q: %w", name, err)
	}
	_, existed, err := b.stores.Templates.Timestamp(name)
	if err != nil {
		return &StoreError{Op: "timestamp", Key: name, Err: err}
	}
	if err := b.stores.Templates.Set(name, body); err != nil {
		return &StoreError{Op: "write template", Key: name, Err: err}
	}
	b.log.Info().Str("template", name).Int("bytes", len(body)).Msg("template written")

	assignments, err := b.stores.Assignments.Snapshot()
	if err != nil {
		b.log.Error().Err(err).Str("template", name).Msg("snapshot assignments for fanout")
	} else {
		for client, tpl := range assignments {
			if string(tpl) == name {
				b.updateClientsNamed(client)
			}
		}
	}
	if !existed {
		b.updateControllers()
	}
	return nil
}

// Assign points a display name at a template.
func (b *Broadcaster) Assign(client, template string) error {
	if err := versioned.ValidateKey(client); err != nil {
		return fmt.Errorf("client %q: %w", client, err)
	}
	if err := versioned.ValidateKey(template); err != nil {
		return fmt.Errorf("template %q: %w", template, err)
	}
	if err := b.stores.Assignments.Set(client, []byte(template)); err != nil {
		return &StoreError{Op: "assign", Key: client, Err: err}
	}
	b.log.Info().Str("client", client).Str("template", template).Msg("assigned")
	b.updateClientsNamed(client)
	b.updateControllers()
	return nil
}

// Unassign clears a display name's template. Unassigning a display with no
// template still refreshes the controllers.
func (b *Broadcaster) Unassign(client string) error {
	if err := versioned.ValidateKey(client); err != nil {
		return fmt.Errorf("client %q: %w", client, err)
	}
	if err := b.stores.Assignments.Delete(client); err != nil {
		return &StoreError{Op: "unassign", Key: client, Err: err}
	}
	b.log.Info().Str("client", client).Msg("unassigned")
	b.updateClientsNamed(client)
	b.updateControllers()
	return nil
}

// Command runs one controller console line: "play <client> <template>" or
// "stop <client>".
func (b *Broadcaster) Command(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("%w: %q", ErrBadCommand, line)
	}
	switch fields[0] {
	case ActionPlay:
		if len(fields) < 3 {
			return fmt.Errorf("%w: %q", ErrBadCommand, line)
		}
		return b.Assign(fields[1], fields[2])
	case ActionStop:
		return b.Unassign(fields[1])
	default:
		return fmt.Errorf("%w: unknown action %q", ErrBadCommand, fields[0])
	}
}

func (b *Broadcaster) updateClientsNamed(name string) {
	for _, c := range b.registry.ClientsNamed(name) {
		b.updateClient(c)
	}
}

func (b *Broadcaster) updateClient(c *ClientSession) {
	action, err := c.Update(b.stores)
	var derr *DeliveryError
	switch {
	case errors.As(err, &derr):
		b.log.Warn().Err(err).Str("client", c.Name()).Msg("client delivery failed")
		b.dropClient(c)
	case err != nil:
		b.log.Error().Err(err).Str("client", c.Name()).Msg("client update aborted")
	case action != "":
		tpl, ts, _ := c.State()
		b.log.Debug().
			Str("client", c.Name()).
			Str("action", action).
			Str("template", tpl).
			Int64("timestamp", ts).
			Msg("sent client update")
	}
}

func (b *Broadcaster) dropClient(c *ClientSession) {
	if !b.registry.RemoveClient(c) {
		return
	}
	c.sink.Close()
	b.updateControllers()
}

func (b *Broadcaster) updateControllers() {
	b.ctrlMu.Lock()
	defer b.ctrlMu.Unlock()
	controllers := b.registry.Controllers()
	if len(controllers) == 0 {
		return
	}
	state, err := b.State()
	if err != nil {
		b.log.Error().Err(err).Msg("build controller snapshot")
		return
	}
	for _, ctl := range controllers {
		if err := ctl.Push(state); err != nil {
			b.log.Warn().Err(err).Msg("controller delivery failed")
			b.dropController(ctl)
		}
	}
	b.log.Debug().
		Int("controllers", len(controllers)).
		Int("clients", len(state.Clients)).
		Int("templates", len(state.Templates)).
		Msg("sent controller update")
}

func (b *Broadcaster) dropController(ctl *ControllerSession) {
	if b.registry.RemoveController(ctl) {
		ctl.sink.Close()
	}
}
