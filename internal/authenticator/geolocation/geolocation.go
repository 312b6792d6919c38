// Package geolocation resolves a client IP to a coarse country/region/city, cached at
// geoloc:{ip} for 30 days since geography rarely changes for a given address.
package geolocation

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"

	"adaptivemfa/internal/cache"
)

// Location is the resolved geography for an IP. All fields are empty for an unresolved lookup.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Cache is the subset of cache.Client the resolver depends on.
type Cache interface {
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v interface{}) error
}

// Resolver looks up a client IP's geography through an external provider, caching results.
// A Resolver with no providerURL always resolves to an unknown (zero-value) Location.
type Resolver struct {
	cache Cache
	http  *resty.Client
}

// New returns a Resolver. An empty providerURL disables lookups entirely: every IP
// resolves to an unknown location without touching the cache or network.
func New(c Cache, providerURL string, timeout time.Duration) *Resolver {
	r := &Resolver{cache: c}
	if providerURL != "" {
		r.http = resty.New().SetBaseURL(providerURL).SetTimeout(timeout)
	}
	return r
}

// Resolve returns ip's cached or freshly-looked-up location. Private, loopback, and
// unparseable addresses always resolve to an unknown location without a provider call.
func (r *Resolver) Resolve(ctx context.Context, ip string) (Location, error) {
	if r.http == nil || isPrivate(ip) {
		return Location{}, nil
	}

	var loc Location
	key := cache.GeolocationKey(ip)
	err := r.cache.GetJSON(ctx, key, &loc)
	if err == nil {
		return loc, nil
	}
	if err != cache.ErrNotFound {
		return Location{}, err
	}

	resp, err := r.http.R().SetContext(ctx).SetResult(&loc).Get("/" + ip)
	if err != nil {
		return Location{}, fmt.Errorf("geolocation: lookup %s: %w", ip, err)
	}
	if resp.IsError() {
		return Location{}, fmt.Errorf("geolocation: lookup %s: status %d", ip, resp.StatusCode())
	}

	_ = r.cache.SetJSON(ctx, key, loc, cache.GeolocationTTL)
	return loc, nil
}

func isPrivate(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified()
}
