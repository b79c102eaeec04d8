package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingIndexer struct {
	n atomic.Int32
}

func (c *countingIndexer) RebuildIndex() error {
	c.n.Add(1)
	return nil
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, path string, ix Reindexer, cb Callback) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Run(ctx, ix, path, logger, cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestRun_ReindexesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tx.csv")
	if err := os.WriteFile(path, []byte("id\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := &countingIndexer{}
	var mu sync.Mutex
	var seen []string
	startWatcher(t, path, ix, func(p string, err error) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	// a burst of writes collapses into one rebuild
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(path, []byte("id\n1\n"), 0o644)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return ix.n.Load() >= 1
	}, "data file change did not trigger a rebuild")

	time.Sleep(2 * Debounce)
	if n := ix.n.Load(); n != 1 {
		t.Errorf("rebuilds = %d, want 1", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || filepath.Base(seen[0]) != "tx.csv" {
		t.Errorf("callbacks = %v", seen)
	}
}

func TestRun_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tx.csv")
	if err := os.WriteFile(path, []byte("id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ix := &countingIndexer{}
	startWatcher(t, path, ix, nil)

	_ = os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644)
	_ = os.WriteFile(path+".idx.json", []byte("{}"), 0o644)
	time.Sleep(3 * Debounce)
	if n := ix.n.Load(); n != 0 {
		t.Errorf("rebuilds = %d, want 0", n)
	}
}

func TestRun_SeesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tx.csv")
	if err := os.WriteFile(path, []byte("id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ix := &countingIndexer{}
	startWatcher(t, path, ix, nil)

	tmp := filepath.Join(dir, ".tx.csv.tmp")
	_ = os.WriteFile(tmp, []byte("id\n7\n"), 0o644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return ix.n.Load() >= 1
	}, "rename over the data file did not trigger a rebuild")
}
