package services

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SMSRateLimiter throttles outbound SMS per recipient. Each number gets its
// own token bucket holding maxRequests tokens that refill over the window, so
// a burst of reminders cannot drain an account's message quota.
type SMSRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	maxRequests int
	window      time.Duration
}

// NewSMSRateLimiter creates a new SMS rate limiter
// maxRequests: maximum number of messages per window
// window: time window for rate limiting (e.g., 1 hour)
func NewSMSRateLimiter(maxRequests int, window time.Duration) *SMSRateLimiter {
	return &SMSRateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow checks if a message may be sent to the given phone number
func (rl *SMSRateLimiter) Allow(phoneNumber string) error {
	rl.mu.Lock()
	limiter, exists := rl.limiters[phoneNumber]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.maxRequests)), rl.maxRequests)
		rl.limiters[phoneNumber] = limiter
	}
	rl.mu.Unlock()

	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded: maximum %d SMS per %v", rl.maxRequests, rl.window)
	}
	return nil
}

// GetStats returns rate limiter statistics
func (rl *SMSRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"tracked_numbers": len(rl.limiters),
		"max_requests":    rl.maxRequests,
		"window":          rl.window.String(),
	}
}

// Reset clears all rate limiting data
func (rl *SMSRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters = make(map[string]*rate.Limiter)
}
