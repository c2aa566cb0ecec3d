package app

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Space/internal/core"
)

func TestRegistry_Lifecycle(t *testing.T) {
	reg := NewRegistry()
	conn := &mockConn{}
	canceled := false
	reg.Bind("a", conn, func() { canceled = true })
	reg.Bind("b", &mockConn{}, nil)
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Conn("a")
	require.True(t, ok)
	assert.Same(t, conn, got)

	_, ok = reg.SpaceOf("a")
	assert.False(t, ok)

	task := NewBroadcaster("a", "room1", newStore(), conn, time.Millisecond, SimplePolicy{})
	require.True(t, reg.AttachSpace("a", "room1", task))
	assert.False(t, reg.AttachSpace("ghost", "room1", task))

	name, ok := reg.SpaceOf("a")
	require.True(t, ok)
	assert.EqualValues(t, "room1", name)

	members := reg.MembersOfSpace("room1")
	require.Len(t, members, 1)
	assert.Equal(t, core.SessionID("a"), members[0].SID)

	entry, ok := reg.Unbind("a")
	require.True(t, ok)
	assert.EqualValues(t, "room1", entry.Space)
	assert.Same(t, task, entry.Task)
	entry.Cancel()
	assert.True(t, canceled)

	_, ok = reg.Unbind("a")
	assert.False(t, ok, "unbind runs once")
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_DetachSpace(t *testing.T) {
	reg := NewRegistry()
	reg.Bind("a", &mockConn{}, nil)
	_, _, ok := reg.DetachSpace("a")
	assert.False(t, ok)

	task := NewBroadcaster("a", "room1", newStore(), &mockConn{}, time.Millisecond, SimplePolicy{})
	task.Start(context.Background())
	reg.AttachSpace("a", "room1", task)

	name, got, ok := reg.DetachSpace("a")
	require.True(t, ok)
	assert.EqualValues(t, "room1", name)
	got.Stop()

	_, ok = reg.SpaceOf("a")
	assert.False(t, ok)
	assert.Empty(t, reg.MembersOfSpace("room1"))
}

func TestRegistry_ICEServersAreCopied(t *testing.T) {
	reg := NewRegistry()
	reg.Bind("a", &mockConn{}, nil)

	servers := []webrtc.ICEServer{{URLs: []string{"stun:example.org:3478"}}}
	require.True(t, reg.SetICEServers("a", servers))
	servers[0] = webrtc.ICEServer{}

	got := reg.ICEServers("a")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"stun:example.org:3478"}, got[0].URLs)

	assert.False(t, reg.SetICEServers("ghost", servers))
	assert.Nil(t, reg.ICEServers("ghost"))
}

func TestSimplePolicy(t *testing.T) {
	var p Policy = SimplePolicy{}
	assert.Equal(t, DropFrame, p.OnBackPressure("a", SnapshotFrame))
	assert.Equal(t, KickMember, p.OnBackPressure("a", ControlFrame))
}
