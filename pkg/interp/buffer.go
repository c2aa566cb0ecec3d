// Package interp smooths the discrete snapshots of a space into poses that
// can be sampled at any render time.
package interp

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Space/pkg/pose"
	"github.com/dkeye/Space/pkg/protocol"
)

const DefaultPeriod = time.Second / 60

// Options tune a Buffer. Zero fields are derived from Period.
type Options struct {
	// Period is the server broadcast interval.
	Period time.Duration
	// Delay is how far behind the server clock Render samples.
	Delay time.Duration
	// Retention bounds how old a buffered snapshot may get relative to the
	// newest one.
	Retention time.Duration
	// MaxExtrapolation caps how far past the newest snapshot Query guesses.
	MaxExtrapolation time.Duration
	// MaxSize caps the number of buffered snapshots.
	MaxSize int
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.Delay <= 0 {
		o.Delay = 3 * o.Period
	}
	if o.Retention <= 0 {
		o.Retention = 12 * o.Period
	}
	if o.Retention < o.Delay+2*o.Period {
		o.Retention = o.Delay + 2*o.Period
	}
	if o.MaxExtrapolation <= 0 {
		o.MaxExtrapolation = 2 * o.Period
	}
	if o.MaxSize < 2 {
		o.MaxSize = 120
	}
	return o
}

type entry struct {
	at    time.Time
	state []pose.Participant
}

// Buffer is a time-ordered window of snapshots of one space. It is safe for
// one feeder and any number of readers.
type Buffer struct {
	mu      sync.Mutex
	opts    Options
	entries []entry
	now     func() time.Time

	// offset is server time minus local time, fixed at the first snapshot.
	offset    time.Duration
	hasOffset bool
}

func New(opts Options) *Buffer {
	return &Buffer{opts: opts.withDefaults(), now: time.Now}
}

// Add inserts s in timestamp order. Snapshots with a timestamp already
// buffered, or older than the retention window, are dropped and Add reports
// false.
func (b *Buffer) Add(s protocol.Snapshot) bool {
	at := time.UnixMilli(s.Time)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasOffset {
		b.offset = at.Sub(b.now())
		b.hasOffset = true
	}
	if n := len(b.entries); n > 0 && at.Before(b.entries[n-1].at.Add(-b.opts.Retention)) {
		return false
	}

	i, found := slices.BinarySearchFunc(b.entries, at, func(e entry, t time.Time) int {
		return e.at.Compare(t)
	})
	if found {
		return false
	}
	b.entries = slices.Insert(b.entries, i, entry{at: at, state: s.State})
	b.trim()
	return true
}

// trim drops entries that fell out of the retention window, keeping at
// least two so a query always has a pair.
func (b *Buffer) trim() {
	newest := b.entries[len(b.entries)-1].at
	horizon := newest.Add(-b.opts.Retention)
	cut := 0
	for cut < len(b.entries)-2 && b.entries[cut].at.Before(horizon) {
		cut++
	}
	if over := len(b.entries) - cut - b.opts.MaxSize; over > 0 {
		cut += over
	}
	if cut > 0 {
		b.entries = slices.Delete(b.entries, 0, cut)
	}
}

// Query estimates every participant at target server time. It returns false
// with fewer than two snapshots or when target precedes the oldest one.
// Past the newest snapshot the last pair is extrapolated, at most
// MaxExtrapolation ahead.
func (b *Buffer) Query(target time.Time) (map[string]pose.Participant, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	if n < 2 || target.Before(b.entries[0].at) {
		return nil, false
	}

	var older, newer entry
	if newest := b.entries[n-1].at; !target.Before(newest) {
		older, newer = b.entries[n-2], b.entries[n-1]
		if limit := newest.Add(b.opts.MaxExtrapolation); target.After(limit) {
			target = limit
		}
	} else {
		// First entry strictly after target; target >= entries[0] so i >= 1.
		i, _ := slices.BinarySearchFunc(b.entries, target, func(e entry, t time.Time) int {
			if e.at.After(t) {
				return 1
			}
			return -1
		})
		older, newer = b.entries[i-1], b.entries[i]
	}

	span := newer.at.Sub(older.at)
	t := float64(target.Sub(older.at)) / float64(span)
	return blend(older.state, newer.state, t), true
}

// Render samples the buffer at the local time now, shifted onto the server
// clock and held back by Delay.
func (b *Buffer) Render(now time.Time) (map[string]pose.Participant, bool) {
	b.mu.Lock()
	if !b.hasOffset {
		b.mu.Unlock()
		return nil, false
	}
	target := now.Add(b.offset).Add(-b.opts.Delay)
	b.mu.Unlock()
	return b.Query(target)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Reset empties the buffer and forgets the clock offset, e.g. after joining
// another space.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.hasOffset = false
	b.offset = 0
}

// blend interpolates participants present in both states and passes the
// others through unchanged.
func blend(older, newer []pose.Participant, t float64) map[string]pose.Participant {
	out := make(map[string]pose.Participant, len(newer))
	prev := make(map[string]pose.Participant, len(older))
	for _, p := range older {
		prev[p.ID] = p
		out[p.ID] = p.Clone()
	}
	for _, p := range newer {
		if a, ok := prev[p.ID]; ok {
			out[p.ID] = pose.Interpolate(a, p, t)
			continue
		}
		out[p.ID] = p.Clone()
	}
	return out
}
