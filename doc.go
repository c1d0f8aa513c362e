// Package stratacache composes independent cache backends behind one uniform
// operation contract and cascades every operation across an ordered list of
// levels under an inclusive or exclusive consistency model.
//
// Components:
//   - Cache: the contract every level implements (backend/local, backend/lru,
//     backend/bigcache, backend/redis - or any custom backend).
//   - Multilevel: the coordinator. Reads scan levels in order; inclusive
//     caches backfill deep hits into earlier levels, exclusive caches
//     relocate them to level 1. Multilevel implements Cache itself, so
//     multilevel caches nest.
//   - Object: the versioned envelope {Key, Value, Version} every operation
//     stores and returns. Versions drive optimistic-concurrency checks via
//     WithVersion.
//   - Transaction: key-scoped pessimistic locking over a block of
//     operations, with per-attempt timeouts and a bounded retry budget.
//
// Usage:
//
//	front, _ := lru.New(lru.Config{Capacity: 1024})
//	back, _ := redisbackend.New(redisbackend.Config{Client: rdb, Namespace: "app", Codec: codec.Msgpack{}})
//	cache, _ := stratacache.New(stratacache.Options{
//	    Levels: []stratacache.Cache{front, back},
//	    Model:  stratacache.ModelInclusive,
//	})
//
//	obj, ok, _ := cache.Get(ctx, "user:1", stratacache.WithFallback(loadUser))
package stratacache
