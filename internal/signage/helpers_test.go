package signage

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"multidisplay/pkg/versioned"
)

// recordingSink keeps every message sent to it.
type recordingSink struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   error
	closed bool
}

func (s *recordingSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recordingSink) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) last(t *testing.T, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.msgs, "no messages sent")
	require.NoError(t, json.Unmarshal(s.msgs[len(s.msgs)-1], v))
}

func (s *recordingSink) lastAction(t *testing.T) string {
	t.Helper()
	var m struct {
		Action string `json:"action"`
	}
	s.last(t, &m)
	return m.Action
}

// flakyStore fails reads for selected keys.
type flakyStore struct {
	versioned.Store
	mu      sync.Mutex
	failing map[string]bool
}

var errDisk = errors.New("disk on fire")

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: versioned.NewMemory(), failing: make(map[string]bool)}
}

func (f *flakyStore) breakKey(key string, broken bool) {
	f.mu.Lock()
	f.failing[key] = broken
	f.mu.Unlock()
}

func (f *flakyStore) broken(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing[key]
}

func (f *flakyStore) Get(key string) ([]byte, bool, error) {
	if f.broken(key) {
		return nil, false, errDisk
	}
	return f.Store.Get(key)
}

func (f *flakyStore) Timestamp(key string) (int64, bool, error) {
	if f.broken(key) {
		return 0, false, errDisk
	}
	return f.Store.Timestamp(key)
}

func newTestBroadcaster() (*Broadcaster, *versioned.Memory, *versioned.Memory) {
	templates := versioned.NewMemory()
	assignments := versioned.NewMemory()
	b := NewBroadcaster(templates, assignments, NewRegistry(), zerolog.Nop())
	return b, templates, assignments
}
