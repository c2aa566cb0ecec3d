package orch

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

// ICEProvider issues extra relay servers for one connection.
type ICEProvider interface {
	ICEServers(ctx context.Context, sid core.SessionID) ([]webrtc.ICEServer, error)
}

// Orchestrator runs the membership protocol on top of the registry, the
// space store and the relay. Handlers call it on message arrival.
type Orchestrator struct {
	Registry *app.Registry
	Store    *app.SpaceStore
	Relay    *app.Relay
	Policy   app.Policy

	ICE         ICEProvider
	ICEDefaults []webrtc.ICEServer
	ICETimeout  time.Duration

	TickPeriod time.Duration
}

func New(reg *app.Registry, store *app.SpaceStore) *Orchestrator {
	return &Orchestrator{
		Registry:   reg,
		Store:      store,
		Relay:      &app.Relay{Registry: reg},
		Policy:     app.SimplePolicy{},
		TickPeriod: time.Second / app.DefaultTickRate,
	}
}

// Connect registers a fresh channel and starts fetching its ICE servers.
func (o *Orchestrator) Connect(ctx context.Context, sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.Bind(sid, conn, cancel)
	o.Registry.SetICEServers(sid, o.ICEDefaults)
	if o.ICE != nil {
		go o.fetchICE(ctx, sid)
	}
}

// Disconnect tears a connection down: broadcaster first, then the record,
// then the channel. Every connection is told. Safe to call repeatedly.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	entry, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	entry.Task.Stop()
	if entry.Space != "" {
		o.Store.Leave(sid, entry.Space)
	}
	if entry.Cancel != nil {
		entry.Cancel()
	}
	entry.Conn.Close()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("space", string(entry.Space)).Msg("disconnected")

	notice := protocol.Departure{Type: protocol.TypeDisconnected, ID: string(sid)}
	for _, snap := range o.Registry.All() {
		o.send(snap.SID, snap.Conn, notice)
	}
}

// send delivers a control event. Control events are not repeated, so a
// connection that cannot take them is handed to the policy.
func (o *Orchestrator) send(sid core.SessionID, conn core.SignalConnection, v any) {
	frame, ok := core.Encode(v)
	if !ok {
		return
	}
	err := conn.TrySend(frame)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrClosed):
		o.Disconnect(sid)
	case errors.Is(err, core.ErrBackpressure):
		o.onBackpressure(sid)
	default:
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("send failed")
	}
}

func (o *Orchestrator) sendTo(sid core.SessionID, v any) {
	if conn, ok := o.Registry.Conn(sid); ok {
		o.send(sid, conn, v)
	}
}

func (o *Orchestrator) onBackpressure(sid core.SessionID) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(sid, app.ControlFrame) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow connection")
		o.Disconnect(sid)
	case app.DropFrame, app.NoAction:
	}
}
