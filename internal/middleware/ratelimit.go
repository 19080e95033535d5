package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"foamcrm/internal/config"
	"foamcrm/internal/metrics"

	"github.com/gin-gonic/gin"
)

// tokenBucket is a simple token bucket for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64
	burst      float64
}

func newBucket(rpm, burst int) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm // 默认突发量为一分钟的配额
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: time.Now(),
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// RateLimitMiddleware applies per-key token bucket limits from
// cfg.Security.RateLimiting. Per-path overrides win over the global
// limit; whitelisted keys and IPs bypass both. Every 429 is counted in
// the metrics package under the matched path prefix ("global" when the
// global bucket rejected). Disabled config means a no-op middleware.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	// key 提取：优先配置的 header（X-Forwarded-For 取第一跳），否则客户端 IP
	extractKey := func(c *gin.Context) string {
		if rl.KeyHeader != "" {
			hVal := c.GetHeader(rl.KeyHeader)
			if hVal != "" {
				if strings.EqualFold(rl.KeyHeader, "X-Forwarded-For") {
					parts := strings.Split(hVal, ",")
					if len(parts) > 0 {
						return strings.TrimSpace(parts[0])
					}
				}
				return hVal
			}
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		return ip
	}
	inStrings := func(needle string, hay []string) bool {
		for _, s := range hay {
			if needle == s {
				return true
			}
		}
		return false
	}

	type limiter struct {
		mu      sync.Mutex
		buckets map[string]*tokenBucket // key -> bucket
		cfg     config.PathRateLimitConfig
	}
	var (
		pathLimiters  []*limiter
		globalLimiter *limiter
	)
	for _, p := range rl.Paths {
		if !p.Enabled || p.RequestsPerMinute <= 0 {
			continue
		}
		pathLimiters = append(pathLimiters, &limiter{
			buckets: make(map[string]*tokenBucket),
			cfg:     p,
		})
	}
	if rl.RequestsPerMinute > 0 {
		globalLimiter = &limiter{
			buckets: make(map[string]*tokenBucket),
			cfg: config.PathRateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: rl.RequestsPerMinute,
				Burst:             rl.Burst,
			},
		}
	}
	get := func(l *limiter, key string) *tokenBucket {
		l.mu.Lock()
		defer l.mu.Unlock()
		if b, ok := l.buckets[key]; ok {
			return b
		}
		b := newBucket(l.cfg.RequestsPerMinute, l.cfg.Burst)
		l.buckets[key] = b
		return b
	}

	return func(c *gin.Context) {
		key := extractKey(c)
		if rl.KeyHeader != "" && inStrings(key, rl.WhitelistKeys) {
			c.Next()
			return
		}
		if (rl.KeyHeader == "" || key == "unknown") && inStrings(c.ClientIP(), rl.WhitelistIPs) {
			c.Next()
			return
		}

		// per-path first
		if len(pathLimiters) > 0 {
			path := c.FullPath()
			if path == "" {
				path = c.Request.URL.Path
			}
			for _, pl := range pathLimiters {
				if pl.cfg.Prefix != "" && strings.HasPrefix(path, pl.cfg.Prefix) {
					if !get(pl, key).allow() {
						metrics.IncRateLimitDrop(pl.cfg.Prefix)
						c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
							"error":   "Too Many Requests",
							"message": "rate limit exceeded (path)",
						})
						return
					}
					c.Next()
					return
				}
			}
		}

		// fallback to global
		if globalLimiter != nil {
			if !get(globalLimiter, key).allow() {
				metrics.IncRateLimitDrop("global")
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":   "Too Many Requests",
					"message": "rate limit exceeded",
				})
				return
			}
		}
		c.Next()
	}
}
