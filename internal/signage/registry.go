package signage

import "sync"

// Registry holds the connected client and controller sessions. One lock
// covers both sets so that a controller broadcast never observes a client
// half-added or half-removed.
type Registry struct {
	mu          sync.RWMutex
	clients     []*ClientSession
	controllers []*ControllerSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddClient registers c. Adding a session twice is a no-op.
func (r *Registry) AddClient(c *ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clients {
		if existing == c {
			return
		}
	}
	r.clients = append(r.clients, c)
}

// RemoveClient unregisters c and reports whether it was present.
func (r *Registry) RemoveClient(c *ClientSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.clients {
		if existing == c {
			r.clients = append(r.clients[:i:i], r.clients[i+1:]...)
			return true
		}
	}
	return false
}

// AddController registers c. Adding a session twice is a no-op.
func (r *Registry) AddController(c *ControllerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.controllers {
		if existing == c {
			return
		}
	}
	r.controllers = append(r.controllers, c)
}

// RemoveController unregisters c and reports whether it was present.
func (r *Registry) RemoveController(c *ControllerSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.controllers {
		if existing == c {
			r.controllers = append(r.controllers[:i:i], r.controllers[i+1:]...)
			return true
		}
	}
	return false
}

// Clients returns a snapshot of the connected clients in connect order.
func (r *Registry) Clients() []*ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ClientSession(nil), r.clients...)
}

// Controllers returns a snapshot of the connected controllers.
func (r *Registry) Controllers() []*ControllerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ControllerSession(nil), r.controllers...)
}

// ClientsNamed returns every connected session using the display name.
func (r *Registry) ClientsNamed(name string) []*ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ClientSession
	for _, c := range r.clients {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// ClientNames returns one name per connected session. Two displays sharing
// a name appear twice.
func (r *Registry) ClientNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for _, c := range r.clients {
		names = append(names, c.Name())
	}
	return names
}

// ForEachClient calls fn for each client in a snapshot taken at call time.
func (r *Registry) ForEachClient(fn func(*ClientSession)) {
	for _, c := range r.Clients() {
		fn(c)
	}
}

// ForEachController calls fn for each controller in a snapshot taken at
// call time.
func (r *Registry) ForEachController(fn func(*ControllerSession)) {
	for _, c := range r.Controllers() {
		fn(c)
	}
}
