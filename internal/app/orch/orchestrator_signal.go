package orch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

// Signal relays a negotiation payload. A target whose channel is gone is
// cleaned up, as is a target the policy decides to kick.
func (o *Orchestrator) Signal(sid core.SessionID, from, to core.SessionID, payload json.RawMessage) error {
	err := o.Relay.Forward(sid, from, to, payload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrClosed):
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("to", string(to)).Msg("relay target closed")
		o.Disconnect(to)
	case errors.Is(err, core.ErrBackpressure):
		o.onBackpressure(to)
	case errors.Is(err, app.ErrUnauthorizedRelay), errors.Is(err, app.ErrUnknownPeer):
	default:
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("relay failed")
	}
	return err
}

// Pong answers a keepalive.
func (o *Orchestrator) Pong(sid core.SessionID) {
	o.sendTo(sid, protocol.Pong())
}

// Reject tells the caller its last message was not understood.
func (o *Orchestrator) Reject(sid core.SessionID, msg string) {
	o.sendTo(sid, protocol.NewError(msg))
}

// fetchICE asks the provider for relay servers. On failure or timeout the
// connection keeps the defaults; on success the client is told.
func (o *Orchestrator) fetchICE(ctx context.Context, sid core.SessionID) {
	timeout := o.ICETimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	extra, err := o.ICE.ICEServers(ctx, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("ice fetch failed, using defaults")
		return
	}
	servers := append(o.ICEDefaults[:len(o.ICEDefaults):len(o.ICEDefaults)], extra...)
	if !o.Registry.SetICEServers(sid, servers) {
		return
	}
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("servers", len(servers)).Msg("ice servers ready")
	o.sendTo(sid, protocol.ICEServers{Type: protocol.TypeICEServers, ICEServers: servers})
}

func nowMillis() int64 { return time.Now().UnixMilli() }
