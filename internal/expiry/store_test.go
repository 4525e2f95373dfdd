package expiry

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestGetBeforeAndAfterTTL(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[string](5*time.Minute, clock.Now)

	store.Put("a", "hello")

	clock.Advance(5 * time.Minute)
	if v, ok := store.Get("a"); !ok || v != "hello" {
		t.Fatalf("expected hit at exactly ttl, got ok=%v v=%q", ok, v)
	}

	clock.Advance(time.Second)
	if _, ok := store.Get("a"); ok {
		t.Fatal("expected miss after ttl elapsed")
	}
}

func TestLazyExpiryWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[int](time.Minute, clock.Now)

	store.Put("k", 1)
	clock.Advance(2 * time.Minute)

	// Sweep has never run; Get must still report absent.
	if _, ok := store.Get("k"); ok {
		t.Fatal("expired entry visible without sweep")
	}
	if store.Len() != 0 {
		t.Fatalf("expected lazy eviction on read, len=%d", store.Len())
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[int](time.Minute, clock.Now)

	store.Put("old", 1)
	clock.Advance(90 * time.Second)
	store.Put("fresh", 2)

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Fatal("fresh entry swept")
	}

	// Sweep is idempotent.
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("second sweep removed %d entries", removed)
	}
}

func TestPutResetsTimestamp(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[int](time.Minute, clock.Now)

	store.Put("k", 1)
	clock.Advance(45 * time.Second)
	store.Put("k", 2)
	clock.Advance(45 * time.Second)

	v, ok := store.Get("k")
	if !ok {
		t.Fatal("rewritten entry expired from original timestamp")
	}
	if v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
}

func TestTouchExtendsLifetime(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[int](time.Minute, clock.Now)

	store.Put("k", 7)
	clock.Advance(50 * time.Second)
	store.Touch("k")
	clock.Advance(50 * time.Second)

	if _, ok := store.Get("k"); !ok {
		t.Fatal("touched entry expired")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	store := NewStore[int](0, clock.Now)

	store.Put("k", 1)
	clock.Advance(24 * time.Hour)

	if _, ok := store.Get("k"); !ok {
		t.Fatal("entry expired with zero ttl")
	}
}

func TestRemove(t *testing.T) {
	store := NewStore[int](time.Minute, nil)
	store.Put("k", 1)
	store.Remove("k")
	if _, ok := store.Get("k"); ok {
		t.Fatal("removed entry still present")
	}
}
