package app

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/internal/domain"
	"github.com/dkeye/Space/pkg/pose"
)

// ErrSpaceFull is returned by Join when the space is at capacity.
var ErrSpaceFull = errors.New("space full")

const (
	DefaultCapacity    = 4
	DefaultArenaSize   = 7.0
	DefaultSpawnHeight = 0.5
)

type StoreOptions struct {
	Capacity    int
	ArenaSize   float64
	SpawnHeight float64
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// space is one named session. Its mutex makes the capacity check and the
// upsert a single step.
type space struct {
	mu           sync.Mutex
	participants []pose.Participant
}

func (s *space) indexOf(id core.SessionID) int {
	return slices.IndexFunc(s.participants, func(p pose.Participant) bool {
		return p.ID == string(id)
	})
}

// SpaceStore is the single source of truth for who is where. Spaces are
// created on first join and never destroyed.
type SpaceStore struct {
	mu     sync.RWMutex
	spaces map[domain.SpaceName]*space
	opts   StoreOptions
}

func NewSpaceStore(opts StoreOptions) *SpaceStore {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.ArenaSize <= 0 {
		opts.ArenaSize = DefaultArenaSize
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &SpaceStore{
		spaces: make(map[domain.SpaceName]*space),
		opts:   opts,
	}
}

func (st *SpaceStore) Capacity() int { return st.opts.Capacity }

func (st *SpaceStore) getOrCreate(name domain.SpaceName) *space {
	st.mu.RLock()
	sp, ok := st.spaces[name]
	st.mu.RUnlock()
	if ok {
		return sp
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if sp, ok = st.spaces[name]; ok {
		return sp
	}
	sp = &space{}
	st.spaces[name] = sp
	return sp
}

func (st *SpaceStore) get(name domain.SpaceName) (*space, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sp, ok := st.spaces[name]
	return sp, ok
}

func (st *SpaceStore) newParticipant(id core.SessionID, name domain.SpaceName, nickname string) pose.Participant {
	return pose.Participant{
		ID:        string(id),
		SpaceName: string(name),
		Nickname:  nickname,
		Body: pose.Pose{
			Position: pose.Vec3{
				X: st.opts.Rand() * st.opts.ArenaSize,
				Y: st.opts.SpawnHeight,
				Z: st.opts.Rand() * st.opts.ArenaSize,
			},
			Orientation: pose.Identity(),
		},
		Head:      pose.Pose{Orientation: pose.Identity()},
		LeftHand:  pose.HandPose{Orientation: pose.Identity()},
		RightHand: pose.HandPose{Orientation: pose.Identity()},
	}
}

// Join admits id into the space and returns its record and the ids of the
// other members. Re-joining with a present id returns the existing record.
func (st *SpaceStore) Join(id core.SessionID, name domain.SpaceName, nickname string) (pose.Participant, []core.SessionID, error) {
	sp := st.getOrCreate(name)
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if i := sp.indexOf(id); i >= 0 {
		return sp.participants[i].Clone(), peerIDs(sp.participants, id), nil
	}
	if len(sp.participants) >= st.opts.Capacity {
		log.Info().Str("module", "app.store").Str("sid", string(id)).Str("space", string(name)).Msg("space full")
		return pose.Participant{}, nil, ErrSpaceFull
	}

	p := st.newParticipant(id, name, nickname)
	sp.participants = append(sp.participants, p)
	log.Info().
		Str("module", "app.store").
		Str("sid", string(id)).
		Str("space", string(name)).
		Int("participants", len(sp.participants)).
		Msg("participant joined")
	return p.Clone(), peerIDs(sp.participants, id), nil
}

// Update merges u into the record of id. It never creates a record.
func (st *SpaceStore) Update(id core.SessionID, name domain.SpaceName, u pose.Update) bool {
	sp, ok := st.get(name)
	if !ok {
		return false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	i := sp.indexOf(id)
	if i < 0 {
		return false
	}
	u.Apply(&sp.participants[i])
	return true
}

// Leave removes the record of id. Removing an absent record is a no-op.
func (st *SpaceStore) Leave(id core.SessionID, name domain.SpaceName) bool {
	sp, ok := st.get(name)
	if !ok {
		return false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	i := sp.indexOf(id)
	if i < 0 {
		return false
	}
	sp.participants = slices.Delete(sp.participants, i, i+1)
	log.Info().
		Str("module", "app.store").
		Str("sid", string(id)).
		Str("space", string(name)).
		Int("participants", len(sp.participants)).
		Msg("participant left")
	return true
}

// SnapshotExcluding copies the current state of every member except excluded,
// in join order.
func (st *SpaceStore) SnapshotExcluding(name domain.SpaceName, excluded core.SessionID) []pose.Participant {
	sp, ok := st.get(name)
	if !ok {
		return []pose.Participant{}
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	out := make([]pose.Participant, 0, len(sp.participants))
	for _, p := range sp.participants {
		if p.ID == string(excluded) {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

func peerIDs(ps []pose.Participant, excluded core.SessionID) []core.SessionID {
	out := make([]core.SessionID, 0, len(ps))
	for _, p := range ps {
		if p.ID != string(excluded) {
			out = append(out, core.SessionID(p.ID))
		}
	}
	return out
}

// Participants returns every record of the space.
func (st *SpaceStore) Participants(name domain.SpaceName) []pose.Participant {
	return st.SnapshotExcluding(name, "")
}

// Get returns a copy of one record.
func (st *SpaceStore) Get(name domain.SpaceName, id core.SessionID) (pose.Participant, bool) {
	sp, ok := st.get(name)
	if !ok {
		return pose.Participant{}, false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if i := sp.indexOf(id); i >= 0 {
		return sp.participants[i].Clone(), true
	}
	return pose.Participant{}, false
}

func (st *SpaceStore) List() []domain.SpaceInfo {
	st.mu.RLock()
	names := make([]domain.SpaceName, 0, len(st.spaces))
	for name := range st.spaces {
		names = append(names, name)
	}
	st.mu.RUnlock()
	slices.Sort(names)

	out := make([]domain.SpaceInfo, 0, len(names))
	for _, name := range names {
		sp, _ := st.get(name)
		sp.mu.Lock()
		n := len(sp.participants)
		sp.mu.Unlock()
		out = append(out, domain.SpaceInfo{Name: name, Participants: n, Capacity: st.opts.Capacity})
	}
	return out
}
