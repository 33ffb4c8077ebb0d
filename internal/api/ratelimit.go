package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter implements sliding window rate limiting per client
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*slidingWindow
	limit    int
	window   time.Duration
	keyFunc  func(r *http.Request) string
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Limit   int           // Max requests per window
	Window  time.Duration // Time window
	KeyFunc func(r *http.Request) string
	Now     func() time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = GetClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rl := &RateLimiter{
		windows: make(map[string]*slidingWindow),
		limit:   cfg.Limit,
		window:  cfg.Window,
		keyFunc: cfg.KeyFunc,
		now:     cfg.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup(time.NewTicker(cfg.Window))
	return rl
}

// cleanup drops clients with no requests left in the window
func (rl *RateLimiter) cleanup(ticker *time.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, sw := range rl.windows {
				sw.mu.Lock()
				sw.pruneOld(now, rl.window)
				if len(sw.timestamps) == 0 {
					delete(rl.windows, key)
				}
				sw.mu.Unlock()
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// Allow records a request and reports whether it fits the window, with the
// number of requests the client has left
func (rl *RateLimiter) Allow(r *http.Request) (bool, int) {
	key := rl.keyFunc(r)
	now := rl.now()

	rl.mu.Lock()
	sw, exists := rl.windows[key]
	if !exists {
		sw = &slidingWindow{}
		rl.windows[key] = sw
	}
	rl.mu.Unlock()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneOld(now, rl.window)
	if len(sw.timestamps) >= rl.limit {
		return false, 0
	}
	sw.timestamps = append(sw.timestamps, now)
	return true, rl.limit - len(sw.timestamps)
}

func (sw *slidingWindow) pruneOld(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(sw.timestamps) && sw.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		sw.timestamps = sw.timestamps[i:]
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining := rl.Allow(r)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the client IP from a request.
// chi middleware.RealIP already rewrote RemoteAddr, so only the port is stripped.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiters holds the API's limiters
type RateLimiters struct {
	Global *RateLimiter
	Check  *RateLimiter
}

// NewRateLimiters creates the standard limiters
func NewRateLimiters() *RateLimiters {
	return &RateLimiters{
		// Global: 100 requests per minute per client
		Global: NewRateLimiter(RateLimitConfig{
			Limit:  100,
			Window: time.Minute,
		}),
		// Check: 6 per minute per client, each one can cost dozens of GitHub calls
		Check: NewRateLimiter(RateLimitConfig{
			Limit:  6,
			Window: time.Minute,
		}),
	}
}

// Stop stops all cleanup goroutines
func (rls *RateLimiters) Stop() {
	rls.Global.Stop()
	rls.Check.Stop()
}
