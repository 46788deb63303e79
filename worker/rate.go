package worker

import (
	"golang.org/x/time/rate"
)

// NewRateGate builds the model-call limiter shared by the worker handlers.
// requestsPerMinute <= 0 disables the gate.
func NewRateGate(requestsPerMinute float64) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1)
}
