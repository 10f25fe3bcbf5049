// Package breaker builds the gobreaker circuit breakers shared by the cloud
// services.
package breaker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// New apre dopo fails errori consecutivi e riprova dopo openMs.
// intervalMs azzera i contatori mentre e' chiuso (0 = mai).
func New(name string, fails, openMs, intervalMs int) *gobreaker.CircuitBreaker {
	if fails < 1 {
		fails = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: time.Duration(intervalMs) * time.Millisecond,
		Timeout:  time.Duration(openMs) * time.Millisecond,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("breaker: %s %s -> %s", name, from, to)
		},
	})
}

// Rejected reports whether err came from the breaker itself rather than the
// call it guards.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
