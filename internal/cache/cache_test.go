package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	k1 := Key("search:golang generics")
	k2 := Key("search:golang generics")
	k3 := Key("search:golang channels")

	if k1 != k2 {
		t.Error("same input must derive the same key")
	}
	if k1 == k3 {
		t.Error("different inputs must derive different keys")
	}
	if len(k1) == 0 || k1[:11] != "inquest:v1:" {
		t.Errorf("key missing namespace prefix: %s", k1)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("unexpected hit for missing key")
	}

	if err := c.Set("k", []byte("value"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found := c.Get("k")
	if !found || !bytes.Equal(got, []byte("value")) {
		t.Errorf("get = %q, %v", got, found)
	}

	_ = c.Delete("k")
	if _, found := c.Get("k"); found {
		t.Error("key should be gone after delete")
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set(Key("page"), []byte("body"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found := c.Get(Key("page"))
	if !found || !bytes.Equal(got, []byte("body")) {
		t.Errorf("get = %q, %v", got, found)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("stale"), -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("expired entry should miss")
	}
}

func TestLayeredCache_Promotion(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Simulate a fresh process: memory empty, disk populated
	c.memory = NewMemoryCache(time.Minute, time.Minute)

	got, found := c.Get("k")
	if !found || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("expected disk hit, got %q, %v", got, found)
	}

	// The hit must now be served from memory
	if _, found := c.memory.Get("k"); !found {
		t.Error("disk hit was not promoted to the memory layer")
	}
}
