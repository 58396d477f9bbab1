package keyserver

import (
	"sync"
	"time"

	"github.com/ruteri/seal-session/interfaces"
	"golang.org/x/time/rate"
)

// evictEvery is how many Allow calls pass between idle-entry sweeps.
const evictEvery = 256

// UserLimiter applies a token bucket per certificate user.
// A nil *UserLimiter allows everything.
type UserLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byUser map[interfaces.Address]*limiterEntry
	calls  uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserLimiter returns nil when rps or burst is not positive, which disables limiting.
func NewUserLimiter(rps float64, burst int, idleTTL time.Duration) *UserLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &UserLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byUser:  make(map[interfaces.Address]*limiterEntry),
	}
}

// Allow reports whether user may make one more request at now.
func (l *UserLimiter) Allow(user interfaces.Address, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byUser[user]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byUser[user] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.calls++
	if l.calls%evictEvery == 0 {
		cutoff := now.Add(-l.idleTTL)
		for u, v := range l.byUser {
			if v.lastSeen.Before(cutoff) {
				delete(l.byUser, u)
			}
		}
	}
	return allowed
}

// Len returns the number of tracked users.
func (l *UserLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byUser)
}
