package ratelimit

import "golang.org/x/time/rate"

// OrderLimiter throttles outbound order-entry traffic (create/cancel
// requests) at a gateway so a misbehaving strategy can't overrun an
// exchange's own rate limits.
type OrderLimiter struct {
	limiter *rate.Limiter
}

// NewOrderLimiter builds a token-bucket limiter allowing ordersPerSecond
// sustained with the given burst.
func NewOrderLimiter(ordersPerSecond float64, burst int) *OrderLimiter {
	return &OrderLimiter{limiter: rate.NewLimiter(rate.Limit(ordersPerSecond), burst)}
}

// Allow reports whether an order request may be sent now, consuming a
// token if so.
func (l *OrderLimiter) Allow() bool {
	return l.limiter.Allow()
}
