package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// SessionID is the server-generated connection identifier. It is valid
// until disconnect and never reused.
type SessionID string

// Encode marshals an outbound message into a frame.
func Encode(v any) (Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core").Msg("encode frame")
		return nil, false
	}
	return b, true
}
