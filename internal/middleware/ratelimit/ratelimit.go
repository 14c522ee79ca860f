// Package ratelimit meters mutating API calls per client.
package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const window = time.Minute

// Limiter counts requests per client in fixed one-minute windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*counter
	limit   int
	idleTTL time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type counter struct {
	start time.Time
	seen  time.Time
	count int
}

type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 120, CleanupInterval: 5 * time.Minute}
}

// NewLimiter starts a limiter with a background sweep of idle clients. Call Stop to end it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	l := &Limiter{
		clients: make(map[string]*counter),
		limit:   cfg.RequestsPerMinute,
		idleTTL: 2 * cfg.CleanupInterval,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop(cfg.CleanupInterval)
	return l
}

// Allow reports whether client may make one more request in the current window.
func (l *Limiter) Allow(client string) bool {
	_, ok := l.take(client)
	return ok
}

// take counts one request and returns what is left of the window.
func (l *Limiter) take(client string) (remaining int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c := l.clients[client]
	if c == nil || now.Sub(c.start) >= window {
		c = &counter{start: now}
		l.clients[client] = c
	}
	c.seen = now
	c.count++
	return max(l.limit-c.count, 0), c.count <= l.limit
}

func (l *Limiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients not seen for idleTTL.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	for key, c := range l.clients {
		if c.seen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Tracked returns how many clients currently hold a counter.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware limits mutating requests; GET and HEAD pass through unmetered.
func (l *Limiter) Middleware(clientKey func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			client := clientKey(r)
			remaining, ok := l.take(client)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				slog.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", client, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(window/time.Second)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded, retry later"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
