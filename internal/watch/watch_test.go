package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"goldtest/internal/config"
	"goldtest/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rerunRecorder struct {
	mu      sync.Mutex
	changed [][]string
}

func (r *rerunRecorder) rerun(_ context.Context, changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, changed)
}

func (r *rerunRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changed)
}

func (r *rerunRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, batch := range r.changed {
		out = append(out, batch...)
	}
	return out
}

func newTestWatcher(t *testing.T) (*Watcher, *rerunRecorder, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "tests"), 0755); err != nil {
		t.Fatal(err)
	}

	_ = logging.Initialize(root, false, "info")
	t.Cleanup(logging.CloseAll)

	cfg := config.DefaultConfig()
	cfg.Suite.Roots = []string{"tests"}

	rec := &rerunRecorder{}
	w, err := New(root, cfg, rec.rerun)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.debounceDur = 50 * time.Millisecond
	return w, rec, root
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcherRerunsOnSourceChange(t *testing.T) {
	w, rec, root := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	src := filepath.Join(root, "tests", "overflow.rs")
	if err := os.WriteFile(src, []byte("fn main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return rec.count() > 0 }) {
		t.Fatal("expected a rerun after source write")
	}

	found := false
	for _, p := range rec.all() {
		if p == src {
			found = true
		}
	}
	if !found {
		t.Errorf("changed set %v missing %s", rec.all(), src)
	}
}

func TestWatcherIgnoresPendingFiles(t *testing.T) {
	w, rec, root := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	pending := filepath.Join(root, "tests", "overflow.stderr.pending")
	if err := os.WriteFile(pending, []byte("new output\n"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("pending snapshot write triggered %d reruns, want 0", rec.count())
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	w, rec, root := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	golden := filepath.Join(root, "tests", "overflow.stderr")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(golden, []byte("error: overflow\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !waitFor(t, func() bool { return rec.count() > 0 }) {
		t.Fatal("expected a rerun after golden writes")
	}

	// The burst settles into far fewer reruns than writes.
	time.Sleep(200 * time.Millisecond)
	if got := rec.count(); got > 2 {
		t.Errorf("burst of 5 writes produced %d reruns, want <= 2", got)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, _, _ := newTestWatcher(t)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Stop()
	w.Stop()
}

func TestWatcherStatsTrackEvents(t *testing.T) {
	w, rec, root := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	src := filepath.Join(root, "tests", "divzero.rs")
	if err := os.WriteFile(src, []byte("fn main() { 1 / 0; }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return rec.count() > 0 }) {
		t.Fatal("expected a rerun")
	}

	stats := w.StatsSnapshot()
	if stats.Events == 0 {
		t.Error("stats.Events = 0, want > 0")
	}
	if stats.Reruns == 0 {
		t.Error("stats.Reruns = 0, want > 0")
	}
}
