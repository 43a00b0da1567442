package stompclient

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker guards sends to a single broker address.
type Breaker = gobreaker.CircuitBreaker[struct{}]

// NewBreakerConfig returns a factory that creates one circuit breaker per
// broker address, for PublishConfig.NewCircuitBreaker. The breaker opens
// once at least 3 requests were seen in the interval and 60% of them
// failed, and allows maxRequests trial sends again after timeout.
func NewBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) *Breaker {
	return func(addr string) *Breaker {
		settings := gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}
		return gobreaker.NewCircuitBreaker[struct{}](settings)
	}
}
