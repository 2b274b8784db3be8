package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/goclaw/recall/pkg/api/response"
)

// defaultMaxClients bounds the number of tracked clients.
const defaultMaxClients = 10000

// RateLimiter hands out a token bucket per client. The least recently
// seen clients are evicted once maxClients is reached.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing requestsPerSecond per client
// with the given burst. maxClients <= 0 uses a default bound.
func NewRateLimiter(requestsPerSecond float64, burst, maxClients int) *RateLimiter {
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(requestsPerSecond)))
	}
	limiters, _ := lru.New[string, *rate.Limiter](maxClients)
	return &RateLimiter{
		limiters: limiters,
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiter(clientID string) *rate.Limiter {
	if l, ok := rl.limiters.Get(clientID); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	if prev, ok, _ := rl.limiters.PeekOrAdd(clientID, l); ok {
		return prev
	}
	return l
}

// Allow reports whether clientID may proceed now, and otherwise how long
// it should wait.
func (rl *RateLimiter) Allow(clientID string) (bool, time.Duration) {
	l := rl.limiter(clientID)
	if l.Allow() {
		return true, 0
	}
	res := l.Reserve()
	delay := res.Delay()
	res.Cancel()
	return false, delay
}

// RateLimit rejects requests above the client's rate with 429 and a
// Retry-After header. Clients are identified by remote IP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := rl.Allow(clientID(r))
			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))

				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}
				response.Error(w, http.StatusTooManyRequests, response.ErrCodeTooManyRequests, "Rate limit exceeded", requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
