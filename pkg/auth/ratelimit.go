package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tier is the rate limit of one service tier. Burst defaults to
// RequestsPerMinute.
type Tier struct {
	RequestsPerMinute int
	Burst             int
}

// Limiter keeps a token bucket per subject and tier. Tiers without an
// entry use the "default" tier; when that is missing too the caller is
// not limited.
type Limiter struct {
	tiers map[string]Tier
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter for the given tiers. Buckets unused for ten
// minutes are dropped.
func NewLimiter(tiers map[string]Tier) *Limiter {
	return &Limiter{
		tiers:   tiers,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow spends one token of the caller's bucket. When the bucket is
// empty it returns ErrTooManyRequests and how long until a token is
// available.
func (l *Limiter) Allow(id *Identity) (time.Duration, error) {
	tierName := id.ServiceTier
	tier, ok := l.tiers[tierName]
	if !ok {
		tierName = "default"
		tier, ok = l.tiers[tierName]
	}
	if !ok || tier.RequestsPerMinute <= 0 {
		return 0, nil
	}

	now := l.now()
	key := id.Subject + "\x00" + tierName

	l.mu.Lock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		burst := tier.Burst
		if burst <= 0 {
			burst = tier.RequestsPerMinute
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(tier.RequestsPerMinute)/60), burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return 0, nil
	}

	// Reserve to learn the wait, then hand the token back.
	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay, ErrTooManyRequests
}

// sweep drops idle buckets at most once per idle period. l.mu must be held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
