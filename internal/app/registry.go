package app

import (
	"context"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/internal/domain"
)

type sessionEntry struct {
	Conn       core.SignalConnection
	Cancel     context.CancelFunc
	Space      domain.SpaceName
	Task       *Broadcaster
	ICEServers []webrtc.ICEServer
}

// Registry is the connection registry: every live channel keyed by its
// session id, plus the space it has joined, if any.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("sessions", len(r.sessions)).Msg("bound session")
}

// Unbind removes the session and hands back what it owned. The second return
// is false when the session was already gone, which makes disconnect
// handling run once.
func (r *Registry) Unbind(sid core.SessionID) (sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return sessionEntry{}, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("sessions", len(r.sessions)).Msg("unbind session")
	return *e, true
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) SpaceOf(sid core.SessionID) (domain.SpaceName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Space == "" {
		return "", false
	}
	return e.Space, true
}

// AttachSpace records a join and the broadcaster serving it.
func (r *Registry) AttachSpace(sid core.SessionID, name domain.SpaceName, task *Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Space = name
	e.Task = task
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("space", string(name)).Msg("attached space")
	return true
}

// DetachSpace clears the space association and returns the broadcaster the
// caller must stop.
func (r *Registry) DetachSpace(sid core.SessionID) (domain.SpaceName, *Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Space == "" {
		return "", nil, false
	}
	name, task := e.Space, e.Task
	e.Space, e.Task = "", nil
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("space", string(name)).Msg("detached space")
	return name, task, true
}

func (r *Registry) SetICEServers(sid core.SessionID, servers []webrtc.ICEServer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.ICEServers = slices.Clone(servers)
	return true
}

func (r *Registry) ICEServers(sid core.SessionID) []webrtc.ICEServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return slices.Clone(e.ICEServers)
	}
	return nil
}

type regSnap struct {
	SID  core.SessionID
	Conn core.SignalConnection
}

// All lists every live session.
func (r *Registry) All() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, regSnap{SID: sid, Conn: e.Conn})
	}
	return out
}

func (r *Registry) MembersOfSpace(name domain.SpaceName) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Space == name {
			out = append(out, regSnap{SID: sid, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
