package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/woozymasta/go3dep/internal/config"
)

func TestEntryRoundTrip(t *testing.T) {
	want := &Entry{
		URL:         "https://example.test/wms?request=GetMap",
		ContentType: "image/tiff",
		Body:        []byte{0x49, 0x49, 42, 0},
		Stored:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	b, err := want.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalEntry(b)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(want.Body, got.Body); d != "" || got.URL != want.URL || !got.Stored.Equal(want.Stored) {
		t.Errorf("entry mismatch: %+v (-want +got body):\n%s", got, d)
	}

	if _, err := UnmarshalEntry([]byte{0xc1}); err == nil {
		t.Error("expected decode error")
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := s.Set(ctx, "k", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "k", []byte("two")); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get(k) = ok %v, err %v", ok, err)
	}
	if string(got) != "two" {
		t.Errorf("Get(k) = %q, want two", got)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(16, time.Minute)
	defer func() { _ = m.Close() }()
	testStore(t, m)
}

func TestMemoryEvicts(t *testing.T) {
	m := NewMemory(16, time.Minute)
	defer func() { _ = m.Close() }()

	ctx := context.Background()
	for i := range 64 {
		if err := m.Set(ctx, fmt.Sprintf("key-%d", i), []byte{byte(i)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	m.lru.SyncUpdates()

	if n := m.lru.ItemCount(); n > 16 {
		t.Errorf("ItemCount = %d, want at most 16", n)
	}
	if _, ok, _ := m.Get(ctx, "key-63"); !ok {
		t.Error("most recent entry was evicted")
	}
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache", "responses.sqlite"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	testStore(t, s)
}

func TestSQLiteExpiry(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "responses.sqlite"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expired entry returned")
	}

	n, err := s.Purge(ctx)
	if err != nil || n != 1 {
		t.Errorf("Purge = %d, %v; want 1", n, err)
	}
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{"", "none", "memory"} {
		s, err := Open(config.Cache{Backend: backend, Size: 4, TTL: time.Minute})
		if err != nil {
			t.Fatalf("Open(%q): %v", backend, err)
		}
		_ = s.Close()
	}

	if _, err := Open(config.Cache{Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
