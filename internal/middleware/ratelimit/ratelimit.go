package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Limiter keeps per-key hit timestamps and prunes them on every check,
// which gives a sliding window rather than fixed buckets. State lives
// in this process only and is gone after a restart; that is accepted
// for an abuse guard.
type Limiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow records a hit for key unless the key already has limit hits
// inside the window.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.hits[key] = kept
		return false
	}

	l.hits[key] = append(kept, now)
	return true
}

type Config struct {
	Limit  int
	Window time.Duration

	LoginPath       string
	LoginLimit      int
	LoginRetryAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limit:           100,
		Window:          time.Minute,
		LoginPath:       "/api/auth/login",
		LoginLimit:      10,
		LoginRetryAfter: 5 * time.Minute,
	}
}

// Middleware enforces the general per-IP limit on every request and a
// stricter counter keyed ip:login on the login path. It runs before
// any authentication logic.
func Middleware(l *Limiter, cfg Config) echo.MiddlewareFunc {
	def := DefaultConfig()
	if cfg.Limit == 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.LoginLimit == 0 {
		cfg.LoginLimit = def.LoginLimit
	}
	if cfg.LoginRetryAfter == 0 {
		cfg.LoginRetryAfter = def.LoginRetryAfter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if !l.Allow(ip, cfg.Limit, cfg.Window) {
				return tooManyRequests(c, cfg.Window, "rate limit exceeded")
			}

			if c.Request().URL.Path == cfg.LoginPath {
				if !l.Allow(ip+":login", cfg.LoginLimit, cfg.Window) {
					return tooManyRequests(c, cfg.LoginRetryAfter, "too many login attempts")
				}
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, retryAfter time.Duration, msg string) error {
	c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	return echo.NewHTTPError(http.StatusTooManyRequests, msg)
}
