package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Space/internal/core"
	"github.com/dkeye/Space/internal/domain"
	"github.com/dkeye/Space/pkg/protocol"
)

// DefaultTickRate is how many snapshots per second each participant gets.
const DefaultTickRate = 60

// Broadcaster periodically delivers the state of every other participant of
// a space to one connection.
type Broadcaster struct {
	sid    core.SessionID
	space  domain.SpaceName
	store  *SpaceStore
	conn   core.SignalConnection
	period time.Duration
	policy Policy
	now    func() time.Time
	logger zerolog.Logger

	last   int64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBroadcaster(
	sid core.SessionID,
	name domain.SpaceName,
	store *SpaceStore,
	conn core.SignalConnection,
	period time.Duration,
	policy Policy,
) *Broadcaster {
	if period <= 0 {
		period = time.Second / DefaultTickRate
	}
	return &Broadcaster{
		sid:    sid,
		space:  name,
		store:  store,
		conn:   conn,
		period: period,
		policy: policy,
		now:    time.Now,
		logger: log.With().Str("module", "app.broadcaster").Str("sid", string(sid)).Str("space", string(name)).Logger(),
	}
}

// Start launches the tick loop. It must be called once.
func (b *Broadcaster) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.loop(ctx)
}

// Stop cancels the loop and waits until it has returned, so no tick can run
// after Stop for a removed participant.
func (b *Broadcaster) Stop() {
	if b == nil || b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Broadcaster) loop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	b.logger.Debug().Dur("period", b.period).Msg("broadcast started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug().Msg("broadcast stopped")
			return
		case <-ticker.C:
			if err := b.tick(); errors.Is(err, core.ErrClosed) {
				b.logger.Info().Msg("channel closed, broadcast ends")
				return
			}
		}
	}
}

// tick sends one snapshot. A full queue is handed to the policy; without
// one the snapshot is dropped and the next tick supersedes it.
func (b *Broadcaster) tick() error {
	frame, ok := core.Encode(protocol.SnapshotMessage{
		Type:     protocol.TypeSnapshot,
		Snapshot: b.next(),
	})
	if !ok {
		return nil
	}
	err := b.conn.TrySend(frame)
	if errors.Is(err, core.ErrBackpressure) {
		return b.onBackpressure()
	}
	return err
}

func (b *Broadcaster) onBackpressure() error {
	action := DropFrame
	if b.policy != nil {
		action = b.policy.OnBackPressure(b.sid, SnapshotFrame)
	}
	switch action {
	case KickMember:
		b.logger.Warn().Msg("kicking slow connection")
		b.conn.Close()
		return core.ErrClosed
	case DropFrame:
		b.logger.Debug().Msg("snapshot dropped, queue full")
	case NoAction:
	}
	return nil
}

// next builds the next snapshot for this receiver. Timestamps strictly
// increase even when the wall clock does not.
func (b *Broadcaster) next() protocol.Snapshot {
	ts := b.now().UnixMilli()
	if ts <= b.last {
		ts = b.last + 1
	}
	b.last = ts
	return protocol.Snapshot{
		ID:    uuid.NewString(),
		Time:  ts,
		State: b.store.SnapshotExcluding(b.space, b.sid),
	}
}
