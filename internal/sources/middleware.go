package sources

import (
	"context"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// CachedAdapter remembers successful fetches for a TTL
type CachedAdapter struct {
	next  Adapter
	cache *cache.Cache
}

// NewCachedAdapter wraps next with a TTL cache
func NewCachedAdapter(next Adapter, ttl time.Duration) *CachedAdapter {
	return &CachedAdapter{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (a *CachedAdapter) Name() string { return a.next.Name() }

func (a *CachedAdapter) Fetch(ctx context.Context, address string) (*models.SourceObservation, error) {
	key := normalizeAddress(address)
	if v, ok := a.cache.Get(key); ok {
		obs := v.(models.SourceObservation)
		return &obs, nil
	}
	obs, err := a.next.Fetch(ctx, address)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, errNoObservation
	}
	a.cache.SetDefault(key, *obs)
	return obs, nil
}

// Invalidate drops a cached observation
func (a *CachedAdapter) Invalidate(address string) {
	a.cache.Delete(normalizeAddress(address))
}

// RateLimitedAdapter caps the request rate to one source
type RateLimitedAdapter struct {
	next    Adapter
	limiter *rate.Limiter
}

// NewRateLimitedAdapter allows perSecond requests with the given burst
func NewRateLimitedAdapter(next Adapter, perSecond float64, burst int) *RateLimitedAdapter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedAdapter{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (a *RateLimitedAdapter) Name() string { return a.next.Name() }

func (a *RateLimitedAdapter) Fetch(ctx context.Context, address string) (*models.SourceObservation, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, errors.ExternalFailure("rate limit wait cancelled", err).WithOperation(a.next.Name())
	}
	return a.next.Fetch(ctx, address)
}
