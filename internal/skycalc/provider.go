package skycalc

import (
	"context"
	"time"
)

// AlmanacProvider abstracts the almanac service.
type AlmanacProvider interface {
	Name() string
	QueryAlmanac(ctx context.Context, req AlmanacRequest) (AlmanacResult, error)
}

// SkyModelProvider abstracts the sky-model calculation service. The returned
// payload is the raw FITS file.
type SkyModelProvider interface {
	Name() string
	FetchSpectrum(ctx context.Context, payload map[string]any) ([]byte, error)
}

// Cache is the contract the in-memory and SQLite response caches satisfy.
type Cache interface {
	Get(key string) ([]byte, error)
	Put(key, kind string, payload []byte) error
}

// Clock returns the current time; tests replace it.
type Clock func() time.Time
