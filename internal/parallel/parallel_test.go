package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForRangeCoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 3}
	n := 37
	seen := make([]int32, n)

	var mu sync.Mutex
	var chunks [][2]int
	ForRange(n, func(start, end int) {
		mu.Lock()
		chunks = append(chunks, [2]int{start, end})
		mu.Unlock()
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
	if len(chunks) < 2 {
		t.Errorf("expected work to be split, got %d chunk(s)", len(chunks))
	}
}

func TestForRange_Sequential(t *testing.T) {
	calls := 0
	ForRange(100, func(start, end int) {
		calls++
		if start != 0 || end != 100 {
			t.Errorf("sequential range = [%d, %d)", start, end)
		}
	}, Sequential())

	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestForRange_Empty(t *testing.T) {
	ForRange(0, func(_, _ int) {
		t.Error("f should not be called for n == 0")
	}, DefaultConfig())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NumWorkers < 1 {
		t.Errorf("NumWorkers = %d", cfg.NumWorkers)
	}
	if cfg.Enabled && cfg.NumWorkers == 1 {
		t.Error("parallelism enabled with a single worker")
	}
}
