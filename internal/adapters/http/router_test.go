package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Space/internal/adapters/signal"
	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/app/orch"
	"github.com/dkeye/Space/internal/config"
	"github.com/dkeye/Space/internal/domain"
	"github.com/dkeye/Space/pkg/client"
	"github.com/dkeye/Space/pkg/pose"
	"github.com/dkeye/Space/pkg/protocol"
)

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	cfg := &config.Config{
		Mode:       "release",
		ReadLimit:  32 << 10,
		PingPeriod: 54 * time.Second,
		PongWait:   60 * time.Second,
		WriteWait:  5 * time.Second,
		SendBuffer: 256,
		Space:      config.SpaceConfig{MaxParticipants: 4, TickRate: 60},
	}
	o := orch.New(app.NewRegistry(), app.NewSpaceStore(app.StoreOptions{}))
	o.TickPeriod = cfg.Space.TickPeriod()

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, signal.NewJoinLimiter(10, 10)))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	c, err := client.Dial(context.Background(), url, client.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitFor returns the first event of the given type.
func waitFor(t *testing.T, c *client.Client, typ string) client.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "connection closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", typ)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestPoseSync_EndToEnd(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	require.NoError(t, a.Join("room1", "alice"))
	var info protocol.InitialInfo
	require.NoError(t, json.Unmarshal(waitFor(t, a, protocol.TypeInitialInfo).Raw, &info))
	initial := info.Participant

	require.NoError(t, b.Join("room1", "bob"))
	var peers protocol.Peers
	require.NoError(t, json.Unmarshal(waitFor(t, b, protocol.TypePeers).Raw, &peers))
	assert.Equal(t, []string{info.ID}, peers.Peers)

	var joined protocol.Joined
	require.NoError(t, json.Unmarshal(waitFor(t, a, protocol.TypeJoined).Raw, &joined))
	assert.Equal(t, "bob", joined.Participant.Nickname)

	x := 3.0
	require.NoError(t, a.SendPose(pose.Update{Body: &pose.Delta{Position: &pose.VecDelta{X: &x}}}))

	want := initial.Clone()
	want.Body.Position.X = 3
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-b.Events():
			require.True(t, ok)
			if ev.Type != protocol.TypeSnapshot {
				continue
			}
			var snap protocol.SnapshotMessage
			require.NoError(t, json.Unmarshal(ev.Raw, &snap))
			require.Len(t, snap.State, 1, "a receiver never sees itself")
			if snap.State[0].Body.Position.X != 3 {
				continue
			}
			assert.Equal(t, want, snap.State[0])
			return
		case <-deadline:
			t.Fatal("update never reached the peer")
		}
	}
}

func TestSignalRelay_EndToEnd(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	require.NoError(t, a.Join("room1", "a"))
	require.NoError(t, b.Join("room1", "b"))
	waitFor(t, a, protocol.TypeInitialInfo)
	var info protocol.InitialInfo
	require.NoError(t, json.Unmarshal(waitFor(t, b, protocol.TypeInitialInfo).Raw, &info))

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"}`)
	require.NoError(t, a.Signal(info.ID, payload))

	var msg protocol.Signal
	require.NoError(t, json.Unmarshal(waitFor(t, b, protocol.TypeSignal).Raw, &msg))
	assert.Equal(t, a.ID(), msg.From)
	assert.JSONEq(t, string(payload), string(msg.Payload))
}

func TestDisconnect_EndToEnd(t *testing.T) {
	srv, o := newServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	require.NoError(t, a.Join("room1", "a"))
	waitFor(t, a, protocol.TypeInitialInfo)
	require.NoError(t, b.Join("room1", "b"))
	waitFor(t, b, protocol.TypeInitialInfo)
	id := a.ID()

	require.NoError(t, a.Close())

	var d protocol.Departure
	require.NoError(t, json.Unmarshal(waitFor(t, b, protocol.TypeDisconnected).Raw, &d))
	assert.Equal(t, id, d.ID)
	require.Eventually(t, func() bool {
		return len(o.Store.Participants("room1")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSpacesAPI(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	require.NoError(t, a.Join("room1", "alice"))
	waitFor(t, a, protocol.TypeInitialInfo)

	resp, err := http.Get(srv.URL + "/api/spaces")
	require.NoError(t, err)
	defer resp.Body.Close()
	var spaces []domain.SpaceInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spaces))
	assert.Equal(t, []domain.SpaceInfo{{Name: "room1", Participants: 1, Capacity: 4}}, spaces)

	resp2, err := http.Get(srv.URL + "/api/spaces/room1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var detail struct {
		Name         string             `json:"name"`
		Capacity     int                `json:"capacity"`
		Participants []pose.Participant `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&detail))
	assert.Equal(t, "room1", detail.Name)
	require.Len(t, detail.Participants, 1)
	assert.Equal(t, "alice", detail.Participants[0].Nickname)
}

func TestParticipantAPI(t *testing.T) {
	srv, _ := newServer(t)
	a := dial(t, srv)
	require.NoError(t, a.Join("room1", "alice"))
	waitFor(t, a, protocol.TypeInitialInfo)

	resp, err := http.Get(srv.URL + "/api/spaces/room1/participants/" + a.ID())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p pose.Participant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, a.ID(), p.ID)
	assert.Equal(t, "alice", p.Nickname)

	missing, err := http.Get(srv.URL + "/api/spaces/room1/participants/nobody")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSpaceFull_EndToEnd(t *testing.T) {
	srv, _ := newServer(t)
	for range 4 {
		c := dial(t, srv)
		require.NoError(t, c.Join("room1", "n"))
		waitFor(t, c, protocol.TypeInitialInfo)
	}
	late := dial(t, srv)
	require.NoError(t, late.Join("room1", "late"))

	var full protocol.SpaceFull
	require.NoError(t, json.Unmarshal(waitFor(t, late, protocol.TypeSpaceFull).Raw, &full))
	assert.Equal(t, "room1", full.SpaceName)
}
