// Package multilevelfx provides an fx module wiring a two-level in-process
// cache: a capacity-bounded LRU front backed by an unbounded sharded store,
// inclusive model. Useful as an application default and in tests.
package multilevelfx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/stratacache"
	"github.com/unkn0wn-root/stratacache/backend/local"
	"github.com/unkn0wn-root/stratacache/backend/lru"
	zaplog "github.com/unkn0wn-root/stratacache/log/zap"
)

// Module provides a *stratacache.Multilevel. Requires a *zap.Logger;
// a stratacache.Collector is picked up when one is provided.
var Module = fx.Module("multilevelcache",
	fx.Provide(newCache),
)

// Config tunes the provided cache. The zero value is usable.
type Config struct {
	FrontCapacity   int           // 0 => 1024
	BackTTL         time.Duration // 0 => no expiry
	CleanupInterval time.Duration // 0 => 1m
}

// Params holds dependencies for creating the cache.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Stats     stratacache.Collector `optional:"true"`
	Config    Config                `optional:"true"`
	Lifecycle fx.Lifecycle
}

func newCache(p Params) (*stratacache.Multilevel, error) {
	capacity := p.Config.FrontCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	cleanup := p.Config.CleanupInterval
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	front, err := lru.New(lru.Config{Capacity: capacity})
	if err != nil {
		return nil, err
	}
	back := local.New(local.Config{
		DefaultTTL:      p.Config.BackTTL,
		CleanupInterval: cleanup,
	})

	cache, err := stratacache.New(stratacache.Options{
		Levels: []stratacache.Cache{front, back},
		Model:  stratacache.ModelInclusive,
		Logger: zaplog.Logger{L: p.Logger.Named("cache")},
		Stats:  p.Stats,
	})
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return cache.Close(ctx)
		},
	})
	return cache, nil
}
