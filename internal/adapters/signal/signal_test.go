package signal

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/app/orch"
	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

type mockConn struct {
	mu       sync.Mutex
	received []core.Frame
	closed   bool
}

func (m *mockConn) TrySend(f core.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrClosed
	}
	m.received = append(m.received, f)
	return nil
}

func (m *mockConn) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, f := range m.received {
		var env protocol.Envelope
		_ = json.Unmarshal(f, &env)
		if env.Type != protocol.TypeSnapshot {
			out = append(out, env.Type)
		}
	}
	return out
}

func (m *mockConn) lastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.received) - 1; i >= 0; i-- {
		var e protocol.Error
		if json.Unmarshal(m.received[i], &e) == nil && e.Type == protocol.TypeError {
			return e.Error
		}
	}
	return ""
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
}

func setup(t *testing.T, joins *JoinLimiter) (*SignalWSController, *orch.Orchestrator) {
	t.Helper()
	o := orch.New(app.NewRegistry(), app.NewSpaceStore(app.StoreOptions{}))
	o.TickPeriod = time.Hour
	return NewSignalWSController(o, joins, Options{}), o
}

func attach(t *testing.T, o *orch.Orchestrator, sid core.SessionID) *mockConn {
	t.Helper()
	conn := &mockConn{}
	o.Connect(context.Background(), sid, conn, func() {})
	t.Cleanup(func() { o.Disconnect(sid) })
	return conn
}

func TestHandleSignal_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr string
	}{
		{"not json", `{{`, "bad_json"},
		{"unknown type", `{"type":"teleport"}`, "unknown_type"},
		{"join without space", `{"type":"join","nickname":"a"}`, "invalid_space_name"},
		{"join with long space", `{"type":"join","spaceName":"` + strings.Repeat("x", 65) + `"}`, "invalid_space_name"},
		{"join with bad field", `{"type":"join","spaceName":5}`, "bad_payload"},
		{"pose with bad field", `{"type":"pose-update","body":{"position":{"x":"far"}}}`, "bad_payload"},
		{"signal without target", `{"type":"signal","from":"a","payload":{}}`, "missing_target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, o := setup(t, nil)
			a := attach(t, o, "a")
			ctl.handleSignal(context.Background(), "a", []byte(tt.frame))
			assert.Equal(t, tt.wantErr, a.lastError())
			_, joined := o.Registry.SpaceOf("a")
			assert.False(t, joined)
		})
	}
}

func TestHandleSignal_Flow(t *testing.T) {
	ctl, o := setup(t, nil)
	ctx := context.Background()
	a := attach(t, o, "a")
	b := attach(t, o, "b")

	ctl.handleSignal(ctx, "a", []byte(`{"type":"join","spaceName":"room1","nickname":"  alice  "}`))
	assert.Equal(t, []string{protocol.TypeInitialInfo, protocol.TypePeers, protocol.TypeOtherParticipants}, a.types())
	rec, ok := o.Store.Get("room1", "a")
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Nickname)

	ctl.handleSignal(ctx, "b", []byte(`{"type":"join","spaceName":"room1"}`))
	rec, ok = o.Store.Get("room1", "b")
	require.True(t, ok)
	assert.Equal(t, "woogly", rec.Nickname)

	ctl.handleSignal(ctx, "a", []byte(`{"type":"pose-update","body":{"position":{"x":3}}}`))
	before, _ := o.Store.Get("room1", "a")
	assert.Equal(t, 3.0, before.Body.Position.X)

	a.reset()
	b.reset()
	ctl.handleSignal(ctx, "a", []byte(`{"type":"signal","from":"a","to":"b","payload":{"type":"offer","sdp":"v=0"}}`))
	assert.Equal(t, []string{protocol.TypeSignal}, b.types())

	ctl.handleSignal(ctx, "a", []byte(`{"type":"signal","from":"b","to":"b","payload":{}}`))
	assert.Equal(t, []string{protocol.TypeSignal}, b.types(), "spoofed signal dropped")
	assert.Empty(t, a.types(), "spoofing is not answered")

	ctl.handleSignal(ctx, "a", []byte(`{"type":"ping"}`))
	assert.Equal(t, []string{protocol.TypePong}, a.types())

	ctl.handleSignal(ctx, "a", []byte(`{"type":"leave"}`))
	_, ok = o.Store.Get("room1", "a")
	assert.False(t, ok)
	assert.Contains(t, b.types(), protocol.TypeLeft)
}

func TestHandleSignal_JoinRateLimit(t *testing.T) {
	ctl, o := setup(t, NewJoinLimiter(0.001, 2))
	a := attach(t, o, "a")
	ctx := context.Background()

	ctl.handleSignal(ctx, "a", []byte(`{"type":"join","spaceName":"room1"}`))
	ctl.handleSignal(ctx, "a", []byte(`{"type":"join","spaceName":"room2"}`))
	assert.Empty(t, a.lastError())

	ctl.handleSignal(ctx, "a", []byte(`{"type":"join","spaceName":"room3"}`))
	assert.Equal(t, "too_many_joins", a.lastError())
	name, _ := o.Registry.SpaceOf("a")
	assert.EqualValues(t, "room2", name)
}

func TestJoinLimiter(t *testing.T) {
	jl := NewJoinLimiter(0.001, 1)
	assert.True(t, jl.Allow("a"))
	assert.False(t, jl.Allow("a"))
	assert.True(t, jl.Allow("b"), "buckets are per connection")
	assert.Equal(t, 2, jl.Len())

	jl.Forget("a")
	assert.Equal(t, 1, jl.Len())
	assert.True(t, jl.Allow("a"))

	unlimited := NewJoinLimiter(0, 0)
	for range 100 {
		require.True(t, unlimited.Allow("a"))
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{PingPeriod: time.Minute, PongWait: 10 * time.Second}.withDefaults()
	assert.Less(t, o.PingPeriod, o.PongWait)
	assert.Positive(t, o.ReadLimit)
	assert.Positive(t, o.WriteWait)
	assert.Equal(t, 64, o.SendBuffer)
}
