package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/internal/domain"
	"github.com/dkeye/Space/pkg/protocol"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, data []byte) {
	if ctl.Joins != nil && !ctl.Joins.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.Orch.Reject(sid, "too_many_joins")
		return
	}

	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join payload")
		ctl.Orch.Reject(sid, "bad_payload")
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("invalid join payload")
		ctl.Orch.Reject(sid, "invalid_space_name")
		return
	}
	name, err := domain.ParseSpaceName(p.SpaceName)
	if err != nil {
		ctl.Orch.Reject(sid, "invalid_space_name")
		return
	}

	err = ctl.Orch.Join(ctx, sid, name, domain.NormalizeNickname(p.Nickname))
	if err != nil && !errors.Is(err, app.ErrSpaceFull) {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.Orch.Reject(sid, "join_failed")
	}
}

// handleLeave leaves the current space; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	if !ctl.Orch.Leave(sid) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("leave without space")
	}
}
