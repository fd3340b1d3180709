package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxConnsPerIP = 10
	DefaultAuthPerMinute = 5
	authWindow           = time.Minute
	defaultCleanupPeriod = time.Minute
)

type Config struct {
	MaxConnsPerIP int
	AuthPerMinute int
}

type RateLimiter struct {
	connections  map[string]int         // IP -> open realtime connections
	authAttempts map[string][]time.Time // IP -> auth attempts inside the window
	mu           sync.Mutex
	maxConns     int
	maxAuth      int
	now          func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New starts a limiter with a background janitor; call Stop to end it.
// Zero config values take the defaults.
func New(cfg Config) *RateLimiter {
	if cfg.MaxConnsPerIP <= 0 {
		cfg.MaxConnsPerIP = DefaultMaxConnsPerIP
	}
	if cfg.AuthPerMinute <= 0 {
		cfg.AuthPerMinute = DefaultAuthPerMinute
	}

	rl := &RateLimiter{
		connections:  make(map[string]int),
		authAttempts: make(map[string][]time.Time),
		maxConns:     cfg.MaxConnsPerIP,
		maxAuth:      cfg.AuthPerMinute,
		now:          time.Now,
		stop:         make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(defaultCleanupPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-authWindow)
	for ip, attempts := range rl.authAttempts {
		valid := recent(attempts, cutoff)
		if len(valid) == 0 {
			delete(rl.authAttempts, ip)
		} else {
			rl.authAttempts[ip] = valid
		}
	}
}

func recent(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// AcquireConnection reserves a connection slot for ip. It returns false when
// the ip is at its limit; otherwise the caller must ReleaseConnection.
func (rl *RateLimiter) AcquireConnection(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.connections[ip] >= rl.maxConns {
		return false
	}
	rl.connections[ip]++
	return true
}

func (rl *RateLimiter) ReleaseConnection(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.connections[ip]--
	if rl.connections[ip] <= 0 {
		delete(rl.connections, ip)
	}
}

func (rl *RateLimiter) Connections(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.connections[ip]
}

// CanAuth records an auth attempt from ip and reports whether it is allowed.
func (rl *RateLimiter) CanAuth(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempts := recent(rl.authAttempts[ip], now.Add(-authWindow))
	if len(attempts) >= rl.maxAuth {
		rl.authAttempts[ip] = attempts
		return false
	}
	rl.authAttempts[ip] = append(attempts, now)
	return true
}

func GetClientIP(r *http.Request) string {
	// Reverse proxies append to X-Forwarded-For; the first hop is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
