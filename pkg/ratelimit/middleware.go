package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
)

// Config holds rate limiting configuration for the device API
type Config struct {
	// Per-client limiting, keyed by the caller's IP address
	PerClientEnabled    bool
	PerClientCapacity   int
	PerClientRefillRate float64

	// Per-subject limiting, keyed by the JWT "sub" claim when a token was verified
	PerSubjectEnabled    bool
	PerSubjectCapacity   int
	PerSubjectRefillRate float64

	// How long to keep idle buckets in memory
	BucketTTL time.Duration

	// Use X-Forwarded-For / X-Real-IP when the service runs behind a proxy
	TrustProxyHeaders bool
}

// DefaultConfig returns 120 requests per minute per client and 300 per subject
func DefaultConfig() Config {
	return Config{
		PerClientEnabled:     true,
		PerClientCapacity:    120,
		PerClientRefillRate:  120.0 / 60.0,
		PerSubjectEnabled:    true,
		PerSubjectCapacity:   300,
		PerSubjectRefillRate: 300.0 / 60.0,
		BucketTTL:            time.Hour,
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config         Config
	clientLimiter  *Limiter
	subjectLimiter *Limiter
}

// NewMiddleware creates a rate limiting middleware
func NewMiddleware(config Config) *Middleware {
	m := &Middleware{config: config}
	if config.PerClientEnabled {
		m.clientLimiter = NewLimiter(config.PerClientCapacity, config.PerClientRefillRate, config.BucketTTL)
	}
	if config.PerSubjectEnabled {
		m.subjectLimiter = NewLimiter(config.PerSubjectCapacity, config.PerSubjectRefillRate, config.BucketTTL)
	}
	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, m.config.TrustProxyHeaders)
		if m.clientLimiter != nil && ip != "" {
			if ok, wait := m.clientLimiter.Allow(ip); !ok {
				m.rateLimitExceeded(w, r, "client", wait)
				return
			}
		}

		if sub := subject(r); m.subjectLimiter != nil && sub != "" {
			if ok, wait := m.subjectLimiter.Allow(sub); !ok {
				m.rateLimitExceeded(w, r, "subject", wait)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// Run prunes idle buckets every BucketTTL until ctx is done
func (m *Middleware) Run(ctx context.Context) {
	if m.config.BucketTTL <= 0 {
		return
	}

	ticker := time.NewTicker(m.config.BucketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, l := range []*Limiter{m.clientLimiter, m.subjectLimiter} {
				if l != nil {
					removed += l.Prune()
				}
			}
			if removed > 0 {
				slog.Debug("Pruned idle rate limit buckets", "count", removed)
			}
		}
	}
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string, wait time.Duration) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"path", r.URL.Path,
		"method", r.Method,
	)

	retryAfter := strconv.Itoa(int(wait.Round(time.Second) / time.Second))
	if wait > 0 && retryAfter == "0" {
		retryAfter = "1"
	}
	err := idmerrors.RateLimitExceeded(retryAfter).WithDetail("type", limitType)

	w.Header().Set("Retry-After", retryAfter)
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, map[string]interface{}{
		"status":  "error",
		"message": "Too many requests. Please try again later.",
		"error":   string(err.Code),
		"details": err.Details,
	})
}

// ClientIP returns the caller's address. Proxy headers are only consulted when
// trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// X-Forwarded-For can contain multiple IPs, the first one is the client
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// subject extracts the "sub" claim of a verified JWT from the request context
func subject(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
