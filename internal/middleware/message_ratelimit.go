package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// Message sending limit per member: 30/min, burst 10.
const (
	messageSendRPS   = 0.5
	messageSendBurst = 10
)

// NewMessageLimiter returns the per-member limiter for sending messages.
func NewMessageLimiter() *KeyedLimiter {
	return NewKeyedLimiter(rate.Limit(messageSendRPS), messageSendBurst)
}

// MessageRateLimit limits how fast an authenticated member can send messages.
// It keys on the current user, so it must run after Session.
func MessageRateLimit(l *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow("user:" + user.ID) {
				tooMany(w, l.Burst(), "You are sending messages too quickly. Please slow down.")
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			next.ServeHTTP(w, r)
		})
	}
}
