package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute    int
	IPBurst        int
	LoginPerMinute int
	LoginBurst     int
	// TrustedProxies lists the addresses or CIDR ranges whose X-Forwarded-For
	// header is believed. Requests from anywhere else are keyed by RemoteAddr.
	TrustedProxies []string
}

// RateLimiter throttles per client IP, and login attempts per username so a
// single account cannot be brute forced from many addresses.
type RateLimiter struct {
	perIP    *keyedLimiter
	perLogin *keyedLimiter
	proxies  []netip.Prefix
}

// NewRateLimiter ignores TrustedProxies entries that are neither an address
// nor a CIDR range.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		perIP:    newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst, 60, 20),
		perLogin: newKeyedLimiter(cfg.LoginPerMinute, cfg.LoginBurst, 10, 5),
		proxies:  parseTrustedProxies(cfg.TrustedProxies),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := l.clientIP(r); ip != "" && !l.perIP.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if isLoginRequest(r) {
			if username := loginUsername(r); username != "" && !l.perLogin.allow(username) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// keyedLimiter holds one rate.Limiter per key. Keys idle for longer than
// idleAfter are dropped on the next sweep.
type keyedLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*limiterEntry
	idleAfter time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(perMinute, burst, defaultPerMinute, defaultBurst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &keyedLimiter{
		limit:     rate.Limit(float64(perMinute) / 60),
		burst:     burst,
		limiters:  make(map[string]*limiterEntry),
		idleAfter: 10 * time.Minute,
		now:       time.Now,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) > k.idleAfter {
		for name, entry := range k.limiters {
			if now.Sub(entry.lastSeen) > k.idleAfter {
				delete(k.limiters, name)
			}
		}
		k.lastSweep = now
	}

	entry, ok := k.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientIP returns the peer address, or, when the peer is a trusted proxy, the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
func (l *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !l.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !l.trusted(hop) {
			return hop
		}
	}
	return peer
}

func (l *RateLimiter) trusted(host string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func parseTrustedProxies(entries []string) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return prefixes
}

func isLoginRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == "/api/auth/login"
}

// loginUsername peeks at the JSON body and restores it for the handler.
func loginUsername(r *http.Request) string {
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Username))
}
