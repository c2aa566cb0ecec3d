package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/pkg/protocol"
)

// handlePoseUpdate merges a partial pose. Nothing is sent back; peers see
// the change in their next snapshot.
func (ctl *SignalWSController) handlePoseUpdate(sid core.SessionID, data []byte) {
	var p protocol.PoseUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad pose payload")
		ctl.Orch.Reject(sid, "bad_payload")
		return
	}
	if p.Update.Empty() {
		return
	}
	ctl.Orch.UpdatePose(sid, p.Update)
}
