package web

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// LimitConfig sets the preference write budget of one browsing context.
// A zero PerMinute disables limiting.
type LimitConfig struct {
	PerMinute int
	Burst     int
}

// tokenBucket refills continuously at rate tokens per second up to capacity.
type tokenBucket struct {
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

func (b *tokenBucket) refill(now time.Time) {
	b.tokens = math.Min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// take consumes one token. When none is left it reports how long until one
// will be.
func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := (1 - b.tokens) / b.rate
	return false, time.Duration(wait * float64(time.Second))
}

// WriteLimiter throttles preference writes per browsing context. The HTTP
// API and the sync socket draw from the same buckets.
type WriteLimiter struct {
	cfg     LimitConfig
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWriteLimiter creates a limiter and starts its idle bucket sweeper.
func NewWriteLimiter(cfg LimitConfig) *WriteLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &WriteLimiter{
		cfg:     cfg,
		idleTTL: 5 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	if l.Enabled() {
		go l.sweep()
	}
	return l
}

// Enabled reports whether writes are limited at all.
func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.cfg.PerMinute > 0
}

// Allow spends one write for key. When the budget is exhausted it returns
// false and the time until the next write is allowed.
func (l *WriteLimiter) Allow(key string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:   float64(l.cfg.Burst),
			capacity: float64(l.cfg.Burst),
			rate:     float64(l.cfg.PerMinute) / 60,
			last:     now,
		}
		l.buckets[key] = b
	}
	return b.take(now)
}

// Len returns the number of tracked keys.
func (l *WriteLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Prune drops buckets idle for longer than the idle TTL.
func (l *WriteLimiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if now.Sub(b.last) > l.idleTTL {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

func (l *WriteLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Prune()
		case <-l.stop:
			return
		}
	}
}

// Close stops the sweeper.
func (l *WriteLimiter) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects writes over budget with 429. Requests are keyed by
// browsing context, or by client address when none is given.
func (l *WriteLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow(limitKey(r))
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			logging.WarnContext(r.Context(), "preference write throttled",
				"key", limitKey(r), "retry_after", retry)
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"too many preference writes, retry in "+strconv.Itoa(retry)+"s")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitKey(r *http.Request) string {
	if id := logging.GetBrowsingContext(r.Context()); id != "" {
		return "ctx:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
