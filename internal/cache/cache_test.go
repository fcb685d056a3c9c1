package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", []byte("v"), 20*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("get before expiry: %q ok=%v err=%v", got, ok, err)
	}

	now = now.Add(20 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire at ttl")
	}
}

func TestMemoryIgnoresZeroTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", []byte("v"), 0)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("zero ttl must not cache")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'z'
	got, _, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("cache aliased caller buffer: %q", got)
	}
}

func TestNilMemory(t *testing.T) {
	var m *Memory
	if _, ok, err := m.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("nil cache should miss cleanly")
	}
}
