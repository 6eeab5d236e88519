package rendercache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rerun/internal/rendercache"
)

func openCache(t *testing.T, maxEntries int) (*rendercache.Cache, string) {
	t.Helper()
	dir := t.TempDir()
	cache, err := rendercache.Open(filepath.Join(dir, "render.db"), maxEntries)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, dir
}

func writeRendered(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("rendered"), 0o644); err != nil {
		t.Fatalf("write rendered file: %v", err)
	}
	return path
}

func TestLookupMiss(t *testing.T) {
	cache, _ := openCache(t, 10)
	_, found, err := cache.Lookup(context.Background(), rendercache.Key("up_next", "show s01e01"))
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Fatal("expected miss on empty cache")
	}
}

func TestStoreAndLookup(t *testing.T) {
	cache, dir := openCache(t, 10)
	ctx := context.Background()
	path := writeRendered(t, dir, "up_next.mp4")
	key := rendercache.Key("up_next", "show s01e01")

	if err := cache.Store(ctx, key, "up_next", path); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	got, found, err := cache.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found || got != path {
		t.Fatalf("expected hit for %q, got (%q, %t)", path, got, found)
	}
}

func TestLookupDropsEntryWhenFileMissing(t *testing.T) {
	cache, dir := openCache(t, 10)
	ctx := context.Background()
	path := writeRendered(t, dir, "sassy.mp4")
	key := rendercache.Key("sassy", "line-1")

	if err := cache.Store(ctx, key, "sassy", path); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove rendered file: %v", err)
	}

	_, found, err := cache.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Fatal("expected stale entry to be dropped")
	}
	if count, err := cache.Len(ctx); err != nil || count != 0 {
		t.Fatalf("expected empty cache, count=%d err=%v", count, err)
	}
}

func TestEvictionBoundsEntriesAndDeletesFiles(t *testing.T) {
	cache, dir := openCache(t, 2)
	ctx := context.Background()

	paths := make([]string, 3)
	for i, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		paths[i] = writeRendered(t, dir, name)
		if err := cache.Store(ctx, rendercache.Key("network", name), "network", paths[i]); err != nil {
			t.Fatalf("store %s failed: %v", name, err)
		}
	}

	count, err := cache.Len(ctx)
	if err != nil {
		t.Fatalf("len failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", count)
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Fatal("expected oldest rendered file to be deleted")
	}
	if _, err := os.Stat(paths[2]); err != nil {
		t.Fatalf("newest rendered file must survive: %v", err)
	}
}

func TestKeyIsStable(t *testing.T) {
	a := rendercache.Key("weather", "show s01e01", "sunny")
	b := rendercache.Key("weather", "show s01e01", "sunny")
	c := rendercache.Key("weather", "show s01e01", "rain")
	if a != b {
		t.Fatal("identical inputs must produce identical keys")
	}
	if a == c {
		t.Fatal("different inputs must produce different keys")
	}
}
