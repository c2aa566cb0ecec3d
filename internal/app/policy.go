package app

import "github.com/dkeye/Space/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// FrameKind tells the policy what was lost.
type FrameKind int

const (
	// SnapshotFrame is superseded by the next broadcast tick.
	SnapshotFrame FrameKind = iota
	// ControlFrame carries membership or signaling events that are not
	// repeated.
	ControlFrame
)

type Policy interface {
	OnBackPressure(sid core.SessionID, kind FrameKind) BackpressureAction
}

// SimplePolicy drops snapshots and kicks connections that cannot take
// control events.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.SessionID, kind FrameKind) BackpressureAction {
	if kind == SnapshotFrame {
		return DropFrame
	}
	return KickMember
}
