package pitchcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pitchbatch/internal/fileutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state", "pitch_cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLookupMatchesFingerprint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	fp := fileutil.Fingerprint{Size: 100, ModTime: time.Unix(1700000000, 5).UTC()}

	if _, ok, err := store.Lookup(ctx, "/music/a.wav", fp); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, "/music/a.wav", fp, 439.2); err != nil {
		t.Fatalf("Put: %v", err)
	}
	freq, ok, err := store.Lookup(ctx, "/music/a.wav", fp)
	if err != nil || !ok || freq != 439.2 {
		t.Fatalf("Lookup = %v %v %v", freq, ok, err)
	}

	changed := fp
	changed.Size = 101
	if _, ok, _ := store.Lookup(ctx, "/music/a.wav", changed); ok {
		t.Fatal("a modified file must miss the cache")
	}
	if err := store.Put(ctx, "/music/a.wav", changed, 441); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Frequency != 441 || entries[0].Size != 101 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestStoreClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	fp := fileutil.Fingerprint{Size: 1, ModTime: time.Unix(1, 0)}
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := store.Put(ctx, p, fp, 440); err != nil {
			t.Fatal(err)
		}
	}
	n, err := store.Clear(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	entries, _ := store.List(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty cache, got %d", len(entries))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

type countingDetector struct {
	calls int
	freq  float64
	err   error
}

func (c *countingDetector) DetectPitch(context.Context, string) (float64, error) {
	c.calls++
	return c.freq, c.err
}

func TestDetectorCachesResults(t *testing.T) {
	store := openTestStore(t)
	src := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	inner := &countingDetector{freq: 436}
	det := Detector{Inner: inner, Store: store}

	for range 3 {
		freq, err := det.DetectPitch(context.Background(), src)
		if err != nil || freq != 436 {
			t.Fatalf("DetectPitch = %v, %v", freq, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one tracker call, got %d", inner.calls)
	}
}

func TestDetectorDoesNotCacheFailures(t *testing.T) {
	store := openTestStore(t)
	src := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("tracker failed")
	inner := &countingDetector{err: boom}
	det := Detector{Inner: inner, Store: store}
	for range 2 {
		if _, err := det.DetectPitch(context.Background(), src); !errors.Is(err, boom) {
			t.Fatalf("expected tracker error, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("failures must not be cached, calls=%d", inner.calls)
	}
}
