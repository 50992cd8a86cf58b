package transport

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/time/rate"

	"github.com/mrz1836/warden/internal/metrics"
	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// Limit is the token bucket setting for one endpoint. PerSecond <= 0 means
// unlimited.
type Limit struct {
	PerSecond float64
	Burst     int
}

// endpointLimits are the buckets DefaultRateLimiter gives the known remotes.
// Login and link flows are interactive and rare; registry sync is chatty.
//
//nolint:gochecknoglobals // fixed table
var endpointLimits = map[string]Limit{
	metrics.EndpointIssuer:    {PerSecond: 2, Burst: 4},
	metrics.EndpointBroadcast: {PerSecond: 5, Burst: 10},
	metrics.EndpointRegistry:  {PerSecond: 10, Burst: 20},
}

// RateLimiter keeps one token bucket per endpoint name. Endpoints without a
// Limit of their own get the fallback setting in a bucket of their own.
type RateLimiter struct {
	clock    clock.Clock
	fallback Limit
	limits   map[string]Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithEndpointLimit gives endpoint its own setting.
func WithEndpointLimit(endpoint string, l Limit) LimiterOption {
	return func(r *RateLimiter) { r.limits[endpoint] = l }
}

// WithLimiterClock sets the clock buckets refill and waits sleep on.
func WithLimiterClock(c clock.Clock) LimiterOption {
	return func(r *RateLimiter) { r.clock = c }
}

// NewRateLimiter creates a limiter whose fallback bucket allows perSecond
// with the given burst.
func NewRateLimiter(perSecond float64, burst int, opts ...LimiterOption) *RateLimiter {
	r := &RateLimiter{
		clock:    clock.NewDefaultClock(),
		fallback: Limit{PerSecond: perSecond, Burst: burst},
		limits:   make(map[string]Limit),
		buckets:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRateLimiter uses the built-in per-endpoint settings and falls back
// to 5 requests per second with a burst of 10.
func DefaultRateLimiter(opts ...LimiterOption) *RateLimiter {
	all := make([]LimiterOption, 0, len(endpointLimits)+len(opts))
	for endpoint, l := range endpointLimits {
		all = append(all, WithEndpointLimit(endpoint, l))
	}
	return NewRateLimiter(5, 10, append(all, opts...)...)
}

// LimitFor returns the setting endpoint's bucket uses.
func (r *RateLimiter) LimitFor(endpoint string) Limit {
	if l, ok := r.limits[endpoint]; ok {
		return l
	}
	return r.fallback
}

// Allow takes a token for endpoint if one is available now.
func (r *RateLimiter) Allow(endpoint string) bool {
	if r.bucket(endpoint).AllowN(r.clock.Now(), 1) {
		return true
	}
	metrics.Global.RecordThrottle(0)
	return false
}

// Wait takes a token for endpoint, sleeping on the limiter's clock until it
// is due. A wait cut short by ctx hands the token back.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := r.clock.Now()
	res := r.bucket(endpoint).ReserveN(now, 1)
	if !res.OK() {
		return wardenerr.WithDetails(ErrRateLimited, map[string]string{"endpoint": endpoint})
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	metrics.Global.RecordThrottle(delay)
	select {
	case <-r.clock.TickAfter(delay):
		return nil
	case <-ctx.Done():
		res.CancelAt(r.clock.Now())
		return ctx.Err()
	}
}

func (r *RateLimiter) bucket(endpoint string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[endpoint]; ok {
		return b
	}
	b := newBucket(r.LimitFor(endpoint))
	r.buckets[endpoint] = b
	return b
}

// newBucket starts full.
func newBucket(l Limit) *rate.Limiter {
	burst := max(l.Burst, 1)
	if l.PerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(l.PerSecond), burst)
}
