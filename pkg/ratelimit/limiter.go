package ratelimit

import (
	"math"
	"sync"
	"time"
)

// bucket is one token bucket. Guarded by Limiter.mu.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter keeps a token bucket per key
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int     // Maximum burst per key
	refillRate float64 // Tokens added per second
	ttl        time.Duration
	now        func() time.Time
}

// NewLimiter creates a limiter allowing bursts of capacity and refillRate requests per
// second per key. Buckets idle for longer than ttl are dropped by Prune; 0 keeps them.
func NewLimiter(capacity int, refillRate float64, ttl time.Duration) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Allow takes a token for key. When none is left it returns false and how long until
// the next token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.capacity), lastSeen: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens = math.Min(float64(l.capacity), b.tokens+elapsed*l.refillRate)
	b.lastSeen = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	if l.refillRate <= 0 {
		return false, l.ttl
	}
	wait := time.Duration((1.0 - b.tokens) / l.refillRate * float64(time.Second))
	return false, wait
}

// Reset refills the bucket for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Prune removes buckets idle for longer than the ttl and returns how many were removed
func (l *Limiter) Prune() int {
	if l.ttl <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
