package github

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimit holds GitHub rate limit info
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// GetRateLimitFromHeaders extracts rate limit info from response headers.
// ok is false when the response carried no rate-limit headers.
func GetRateLimitFromHeaders(headers http.Header) (rl RateLimit, ok bool) {
	remainingStr := headers.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return RateLimit{}, false
	}

	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return RateLimit{}, false
	}
	limit, _ := strconv.Atoi(headers.Get("X-RateLimit-Limit"))
	reset, _ := strconv.ParseInt(headers.Get("X-RateLimit-Reset"), 10, 64)

	rl = RateLimit{Limit: limit, Remaining: remaining}
	if reset > 0 {
		rl.Reset = time.Unix(reset, 0)
	}
	return rl, true
}

// RateLimitStatus is the gateway's view of its remaining quota
type RateLimitStatus struct {
	Remaining   *int       `json:"remaining"`
	Limit       *int       `json:"limit,omitempty"`
	Reset       *time.Time `json:"reset"`
	LastRequest *time.Time `json:"lastRequest"`
}

// RateLimitState is the mutable quota record owned by one gateway
type RateLimitState struct {
	mu          sync.RWMutex
	known       bool
	current     RateLimit
	lastRequest time.Time
}

// NewRateLimitState returns an empty state
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{}
}

// Update records the headers of a response received at t
func (s *RateLimitState) Update(headers http.Header, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRequest = t
	if rl, ok := GetRateLimitFromHeaders(headers); ok {
		s.current = rl
		s.known = true
	}
}

// Status returns a snapshot; fields are nil until observed
func (s *RateLimitState) Status() RateLimitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status RateLimitStatus
	if s.known {
		remaining := s.current.Remaining
		limit := s.current.Limit
		status.Remaining = &remaining
		status.Limit = &limit
		if !s.current.Reset.IsZero() {
			reset := s.current.Reset
			status.Reset = &reset
		}
	}
	if !s.lastRequest.IsZero() {
		last := s.lastRequest
		status.LastRequest = &last
	}
	return status
}
