package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

var (
	// ErrUnauthorizedRelay means the claimed sender is not the connection
	// that sent the request.
	ErrUnauthorizedRelay = errors.New("relay: sender mismatch")
	// ErrUnknownPeer means the target connection is not registered.
	ErrUnknownPeer = errors.New("relay: unknown peer")
)

// Relay forwards opaque negotiation payloads between connections by id. It
// keeps no state and is not scoped to spaces.
type Relay struct {
	Registry *Registry
}

// Forward delivers payload to `to`, tagged with `from`. sender is the actual
// identity of the requesting connection.
func (r *Relay) Forward(sender, from, to core.SessionID, payload json.RawMessage) error {
	if sender != from {
		log.Warn().
			Str("module", "app.relay").
			Str("sid", string(sender)).
			Str("claimed_from", string(from)).
			Msg("relay rejected, sender mismatch")
		return ErrUnauthorizedRelay
	}
	conn, ok := r.Registry.Conn(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("sid", string(sender)).Str("to", string(to)).Msg("relay target gone")
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	frame, ok := core.Encode(protocol.Signal{
		Type:    protocol.TypeSignal,
		From:    string(from),
		Payload: payload,
	})
	if !ok {
		return nil
	}
	if err := conn.TrySend(frame); err != nil {
		return fmt.Errorf("relay to %s: %w", to, err)
	}
	return nil
}
