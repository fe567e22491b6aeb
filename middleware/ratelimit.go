package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ChatKit/pkg/cache"
	"ChatKit/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// Limiter applies a per-caller token bucket and caps concurrent streams per
// caller. Callers are keyed by identity and client IP.
type Limiter struct {
	mu       sync.Mutex
	buckets  *cache.Cache
	window   time.Duration
	capacity int

	slotMu      sync.Mutex
	slots       map[string]chan struct{}
	concurrency int

	now func() time.Time
}

func NewLimiter(window time.Duration, capacity, concurrency int) *Limiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	if capacity <= 0 {
		capacity = 5
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Limiter{
		buckets:     cache.New(10000, time.Minute),
		window:      window,
		capacity:    capacity,
		slots:       map[string]chan struct{}{},
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Stop releases the bucket cache janitor.
func (l *Limiter) Stop() { l.buckets.Stop() }

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func callerKey(c *gin.Context) string {
	uid := c.GetString(ContextUserIDKey)
	return uid + "@" + clientIP(c)
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	// idle buckets expire once they would be full again
	b := l.buckets.GetOrSet(key, 2*l.window, func() any {
		return &bucket{tokens: l.capacity, lastRefill: now}
	}).(*bucket)
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		add := int(float64(l.capacity) * (float64(elapsed) / float64(l.window)))
		if add > 0 {
			b.tokens = min(b.tokens+add, l.capacity)
			b.lastRefill = now
		}
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	l.buckets.Set(key, b, 2*l.window)
	return true
}

// RateLimit rejects callers that exhausted their bucket with 429.
func (l *Limiter) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(callerKey(c)) {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many requests"})
			return
		}
		c.Next()
	}
}

// TryAcquire takes a stream slot for key without waiting.
func (l *Limiter) TryAcquire(key string) (release func(), ok bool) {
	l.slotMu.Lock()
	sem := l.slots[key]
	if sem == nil {
		sem = make(chan struct{}, l.concurrency)
		l.slots[key] = sem
	}
	l.slotMu.Unlock()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, true
	default:
		return nil, false
	}
}

// StreamSlots caps concurrent streaming requests per caller; the slot is
// held until the handler returns.
func (l *Limiter) StreamSlots(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		release, ok := l.TryAcquire(callerKey(c))
		if !ok {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many concurrent chats"})
			return
		}
		defer release()
		c.Next()
	}
}
