package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/app"
	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/internal/domain"
	"github.com/dkeye/Space/pkg/pose"
	"github.com/dkeye/Space/pkg/protocol"
)

// Join admits sid into the named space. A connection lives in at most one
// space; joining another one leaves the current one once the target has
// admitted it. On ErrSpaceFull only the requester hears about it and
// nothing changes.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, name domain.SpaceName, nickname string) error {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return nil
	}
	current, inSpace := o.Registry.SpaceOf(sid)
	rejoin := inSpace && current == name

	rec, peers, err := o.Store.Join(sid, name, nickname)
	if errors.Is(err, app.ErrSpaceFull) {
		o.send(sid, conn, protocol.SpaceFull{Type: protocol.TypeSpaceFull, SpaceName: string(name)})
		return err
	}
	if err != nil {
		return err
	}

	if !rejoin {
		if inSpace {
			o.Leave(sid)
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_space", string(current)).Msg("left previous space")
		}
		task := app.NewBroadcaster(sid, name, o.Store, conn, o.TickPeriod, o.Policy)
		task.Start(ctx)
		if !o.Registry.AttachSpace(sid, name, task) {
			// Disconnected while joining.
			task.Stop()
			o.Store.Leave(sid, name)
			return nil
		}
	}

	o.send(sid, conn, protocol.InitialInfo{
		Type:        protocol.TypeInitialInfo,
		ID:          string(sid),
		Participant: rec,
		ICEServers:  o.Registry.ICEServers(sid),
	})
	o.send(sid, conn, protocol.Peers{Type: protocol.TypePeers, Peers: idStrings(peers)})
	o.send(sid, conn, protocol.SnapshotMessage{
		Type:     protocol.TypeOtherParticipants,
		Snapshot: o.snapshotFor(sid, name),
	})

	if !rejoin {
		o.announce(sid, name, rec, peers)
	}
	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("space", string(name)).
		Str("nickname", nickname).
		Int("peers", len(peers)).
		Msg("joined space")
	return nil
}

// announce tells peers about a new member. A member that went away before
// the announcement is not announced; one that went away during it is
// followed by a departure, since its own disconnect notice may have reached
// a peer before the announcement did.
func (o *Orchestrator) announce(sid core.SessionID, name domain.SpaceName, rec pose.Participant, peers []core.SessionID) {
	if current, ok := o.Registry.SpaceOf(sid); !ok || current != name {
		return
	}
	joined := protocol.Joined{Type: protocol.TypeJoined, ID: string(sid), Participant: rec}
	for _, peer := range peers {
		o.sendTo(peer, joined)
	}
	if current, ok := o.Registry.SpaceOf(sid); ok && current == name {
		return
	}
	gone := protocol.Departure{Type: protocol.TypeDisconnected, ID: string(sid)}
	for _, peer := range peers {
		o.sendTo(peer, gone)
	}
}

// UpdatePose merges a partial pose into the caller's record. Connections
// that have not joined are ignored.
func (o *Orchestrator) UpdatePose(sid core.SessionID, u pose.Update) {
	name, ok := o.Registry.SpaceOf(sid)
	if !ok {
		return
	}
	o.Store.Update(sid, name, u)
}

// Leave takes sid out of its space without closing the connection. The
// broadcaster is stopped before the record goes away.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	name, task, ok := o.Registry.DetachSpace(sid)
	if !ok {
		return false
	}
	task.Stop()
	o.Store.Leave(sid, name)

	notice := protocol.Departure{Type: protocol.TypeLeft, ID: string(sid)}
	for _, snap := range o.Registry.MembersOfSpace(name) {
		o.send(snap.SID, snap.Conn, notice)
	}
	o.sendTo(sid, notice)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("space", string(name)).Msg("left space")
	return true
}

func (o *Orchestrator) snapshotFor(sid core.SessionID, name domain.SpaceName) protocol.Snapshot {
	return protocol.Snapshot{
		ID:    string(sid) + ":" + string(name),
		Time:  nowMillis(),
		State: o.Store.SnapshotExcluding(name, sid),
	}
}

func idStrings(ids []core.SessionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
