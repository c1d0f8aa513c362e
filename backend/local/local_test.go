package local

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/unkn0wn-root/stratacache"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	defer b.Close(ctx)

	obj, err := b.Set(ctx, "k", "v")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if obj.Key != "k" || obj.Value != "v" || obj.Version == 0 {
		t.Fatalf("Set returned %+v", obj)
	}

	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || got.Value != "v" || got.Version != obj.Version {
		t.Fatalf("Get: ok=%v err=%v got=%+v", ok, err, got)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("Get hit after Delete")
	}
	// deleting a missing key is fine
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestSetBumpsVersion(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	defer b.Close(ctx)

	first, _ := b.Set(ctx, "k", 1)
	second, _ := b.Set(ctx, "k", 2)
	if second.Version == first.Version {
		t.Fatalf("overwrite kept version %d", first.Version)
	}
}

func TestVersionCheckedWrites(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	defer b.Close(ctx)

	stored, _ := b.Set(ctx, "k", "v1")

	var vc *stratacache.VersionConflictError
	_, err := b.Set(ctx, "k", "v2", stratacache.WithVersion(stored.Version+1))
	if !errors.As(err, &vc) {
		t.Fatalf("stale Set: err=%v, want *VersionConflictError", err)
	}
	if got, _, _ := b.Get(ctx, "k"); got.Value != "v1" {
		t.Fatalf("stale Set changed the value to %v", got.Value)
	}

	if _, err := b.Set(ctx, "k", "v2", stratacache.WithVersion(stored.Version)); err != nil {
		t.Fatalf("matching Set: %v", err)
	}

	// version-checked delete
	cur, _, _ := b.Get(ctx, "k")
	if err := b.Delete(ctx, "k", stratacache.WithVersion(cur.Version+1)); !errors.As(err, &vc) {
		t.Fatalf("stale Delete: err=%v", err)
	}
	if ok, _ := b.Has(ctx, "k"); !ok {
		t.Fatal("stale Delete removed the key")
	}
	if err := b.Delete(ctx, "k", stratacache.WithVersion(cur.Version)); err != nil {
		t.Fatalf("matching Delete: %v", err)
	}

	// version check on an absent key conflicts with Got zero
	err = b.Delete(ctx, "gone", stratacache.WithVersion(1))
	if !errors.As(err, &vc) || vc.Got != 0 {
		t.Fatalf("absent-key Delete: err=%v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	defer b.Close(ctx)

	if _, err := b.Set(ctx, "k", "v", stratacache.WithTTL(20*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, _ := b.Has(ctx, "k"); !ok {
		t.Fatal("Has false before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("Get hit after expiry")
	}
	if ok, _ := b.Has(ctx, "k"); ok {
		t.Fatal("Has true after expiry")
	}
	if n, _ := b.Size(ctx); n != 0 {
		t.Fatalf("Size=%d after expiry", n)
	}
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	b := New(Config{DefaultTTL: 20 * time.Millisecond})
	defer b.Close(ctx)

	b.Set(ctx, "k", "v")
	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("default TTL not applied")
	}
}

func TestJanitorPrunes(t *testing.T) {
	ctx := context.Background()
	b := New(Config{CleanupInterval: 10 * time.Millisecond})
	defer b.Close(ctx)

	b.Set(ctx, "k", "v", stratacache.WithTTL(10*time.Millisecond))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s := b.shardFor("k")
		s.mu.RLock()
		_, present := s.m["k"]
		s.mu.RUnlock()
		if !present {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor never removed the expired entry")
}

func TestEnumeration(t *testing.T) {
	ctx := context.Background()
	b := New(Config{Shards: 4})
	defer b.Close(ctx)

	for i := 0; i < 10; i++ {
		b.Set(ctx, fmt.Sprintf("k%d", i), i)
	}

	if n, _ := b.Size(ctx); n != 10 {
		t.Fatalf("Size=%d, want 10", n)
	}
	keys, _ := b.Keys(ctx)
	if len(keys) != 10 {
		t.Fatalf("Keys=%d, want 10", len(keys))
	}

	sum, err := b.Reduce(ctx, 0, func(acc any, obj *stratacache.Object) any {
		return acc.(int) + obj.Value.(int)
	})
	if err != nil || sum != 45 {
		t.Fatalf("Reduce=%v err=%v, want 45", sum, err)
	}

	m, _ := b.ToMap(ctx)
	if len(m) != 10 || m["k3"] != 3 {
		t.Fatalf("ToMap=%v", m)
	}
	objs, _ := b.ToMap(ctx, stratacache.WithReturn(stratacache.ReturnObject))
	if obj, ok := objs["k3"].(*stratacache.Object); !ok || obj.Value != 3 {
		t.Fatalf("ToMap(ReturnObject)[k3]=%v", objs["k3"])
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, _ := b.Size(ctx); n != 0 {
		t.Fatalf("Size=%d after Flush", n)
	}
}

func TestUpdateCounter(t *testing.T) {
	ctx := context.Background()
	b := New(Config{})
	defer b.Close(ctx)

	n, err := b.UpdateCounter(ctx, "c", 5)
	if err != nil || n != 5 {
		t.Fatalf("UpdateCounter absent: n=%d err=%v", n, err)
	}
	n, err = b.UpdateCounter(ctx, "c", -2)
	if err != nil || n != 3 {
		t.Fatalf("UpdateCounter delta: n=%d err=%v", n, err)
	}

	obj, ok, _ := b.Get(ctx, "c")
	if !ok || obj.Value.(int64) != 3 {
		t.Fatalf("counter readback=%v", obj)
	}

	// counters reuse values written by Set as long as they are numeric
	b.Set(ctx, "c", int(10))
	if n, _ = b.UpdateCounter(ctx, "c", 1); n != 11 {
		t.Fatalf("counter after Set: n=%d, want 11", n)
	}

	b.Set(ctx, "c", "not a number")
	if _, err = b.UpdateCounter(ctx, "c", 1); err == nil {
		t.Fatal("UpdateCounter on non-numeric value succeeded")
	}
}
