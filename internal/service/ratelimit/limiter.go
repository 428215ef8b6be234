package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinRate is the lowest accepted request rate (one call per 10s).
const MinRate = 0.1

// NewSpacing returns a limiter that spaces events at least 1/max(perSec, MinRate)
// seconds apart. Burst 1 means no catching up after idle periods.
func NewSpacing(perSec float64) *rate.Limiter {
	if math.IsNaN(perSec) || perSec < MinRate {
		perSec = MinRate
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

// Interval reports the spacing enforced for perSec.
func Interval(perSec float64) time.Duration {
	if math.IsNaN(perSec) || perSec < MinRate {
		perSec = MinRate
	}
	return time.Duration(float64(time.Second) / perSec)
}

// Limiter throttles events per key, e.g. streamed ticks per symbol.
type Limiter struct {
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func New(perSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rate: rate.Limit(perSec), burst: burst, m: make(map[string]*rate.Limiter)}
}

// Allow returns true if one event can be consumed for key now.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.m[key] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}
