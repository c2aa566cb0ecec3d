package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/Space/internal/core"
)

// JoinLimiter is a token bucket per connection on join attempts.
type JoinLimiter struct {
	mu       sync.Mutex
	limiters map[core.SessionID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewJoinLimiter allows perSecond joins on average with the given burst.
// A non-positive rate disables limiting.
func NewJoinLimiter(perSecond float64, burst int) *JoinLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &JoinLimiter{
		limiters: make(map[core.SessionID]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (jl *JoinLimiter) Allow(sid core.SessionID) bool {
	jl.mu.Lock()
	l, ok := jl.limiters[sid]
	if !ok {
		l = rate.NewLimiter(jl.limit, jl.burst)
		jl.limiters[sid] = l
	}
	jl.mu.Unlock()
	return l.Allow()
}

// Forget drops the bucket of a closed connection.
func (jl *JoinLimiter) Forget(sid core.SessionID) {
	jl.mu.Lock()
	delete(jl.limiters, sid)
	jl.mu.Unlock()
}

func (jl *JoinLimiter) Len() int {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	return len(jl.limiters)
}
