package httpadapter

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// TrafficControl bounds the API's intake: a token-bucket rate limit in
// front of a fixed in-flight request gate. Zero values disable the
// corresponding gate.
type TrafficControl struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	AcquireTimeout time.Duration
}

func (tc TrafficControl) wrap(next http.Handler) http.Handler {
	if tc.MaxInFlight > 0 {
		timeout := tc.AcquireTimeout
		if timeout <= 0 {
			timeout = 100 * time.Millisecond
		}
		next = backpressureMiddleware(next, tc.MaxInFlight, timeout)
	}
	if tc.RateLimitRPS > 0 {
		burst := tc.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		next = rateLimitMiddleware(next, tc.RateLimitRPS, burst)
	}
	return next
}

func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			retryAfter := int(1 / rps)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware sheds load once maxInFlight requests are being
// served and a slot does not free up within the acquire timeout.
func backpressureMiddleware(next http.Handler, maxInFlight int, acquireTimeout time.Duration) http.Handler {
	slots := make(chan struct{}, maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(acquireTimeout)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeJSON(w, http.StatusServiceUnavailable, errorBody("server overloaded, try again later"))
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, errorBody("request cancelled while queued"))
		}
	})
}
