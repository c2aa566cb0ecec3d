package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

// handleRelay forwards an opaque negotiation payload to another connection.
// Spoofed or undeliverable signals are dropped without a reply.
func (ctl *SignalWSController) handleRelay(sid core.SessionID, data []byte) {
	var p protocol.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad signal payload")
		ctl.Orch.Reject(sid, "bad_payload")
		return
	}
	if p.To == "" {
		ctl.Orch.Reject(sid, "missing_target")
		return
	}
	_ = ctl.Orch.Signal(sid, core.SessionID(p.From), core.SessionID(p.To), p.Payload)
}
