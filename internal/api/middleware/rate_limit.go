package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/utils"
	"golang.org/x/time/rate"
)

// MaxBodyBytes caps JSON bodies the limiter reads to find restaurant_id.
const MaxBodyBytes = 16 << 20

// Limiter hands out one token bucket per key (restaurant id, or client IP
// when the request names no restaurant). Idle buckets are swept.
type Limiter struct {
	rps     rate.Limit
	burst   int
	idle    time.Duration
	maxBody int64

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		maxBody: MaxBodyBytes,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// RateLimit throttles per restaurant. The id is taken from the path, the
// staff token or, for JSON bodies, the restaurant_id field.
func RateLimit(l *Limiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.rps <= 0 {
			c.Next()
			return
		}
		key, tooLarge := l.restaurantKey(c)
		if tooLarge {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, apiError{
				Code:    utils.CodeInvalidArgument,
				Reason:  "body_too_large",
				Message: "request body is too large",
			})
			return
		}
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			m.RateLimited()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiError{
				Code:    utils.CodeRateLimited,
				Reason:  "rate_limited",
				Message: "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}

// restaurantKey reports tooLarge when a JSON body exceeds the peek limit.
func (l *Limiter) restaurantKey(c *gin.Context) (key string, tooLarge bool) {
	if id := c.Param("restaurant_id"); id != "" {
		return id, false
	}
	if v, ok := c.Get("restaurant_id"); ok {
		if s, _ := v.(string); s != "" {
			return s, false
		}
	}
	if c.Request.Body == nil || c.ContentType() != "application/json" {
		return "", false
	}
	if c.Request.ContentLength > l.maxBody {
		return "", true
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, l.maxBody+1))
	_ = c.Request.Body.Close()
	if int64(len(raw)) > l.maxBody {
		return "", true
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	var peek struct {
		RestaurantID string `json:"restaurant_id"`
	}
	if json.Unmarshal(raw, &peek) != nil {
		return "", false
	}
	return peek.RestaurantID, false
}
