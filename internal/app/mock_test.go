package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Space/internal/core"
)

type mockConn struct {
	mu       sync.Mutex
	received []core.Frame
	closed   bool
	sendErr  error
}

func (m *mockConn) TrySend(f core.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, f)
	return nil
}

func (m *mockConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *mockConn) frames() []core.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Frame(nil), m.received...)
}

func (m *mockConn) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// decode unmarshals the i-th received frame into v.
func (m *mockConn) decode(i int, v any) error {
	return json.Unmarshal(m.frames()[i], v)
}
