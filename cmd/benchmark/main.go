package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/suggestkit/rankstats/internal/persistence"
	"github.com/suggestkit/rankstats/internal/stats"
)

// Exercises the store with one writer (the coordinating goroutine per
// the store contract) and many concurrent readers, then reports
// throughput and flush time.
func main() {
	dir, err := os.MkdirTemp("", "rankstats-bench-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	store := stats.NewStore(stats.Config{
		Storage: persistence.NewFileStore(dir, persistence.DefaultCodec()),
	})

	const (
		increments = 200000
		readers    = 8
		contexts   = 500
		values     = 50
	)

	fmt.Printf("Begin benchmark: %d increments, %d readers...\n", increments, readers)

	var reads int64
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(readers)

	for i := 0; i < readers; i++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-done:
					return
				default:
				}
				key := stats.NewKey(
					fmt.Sprintf("ctx-%d", rng.Intn(contexts)),
					fmt.Sprintf("val-%d", rng.Intn(values)),
				)
				store.GetUseCount(key)
				store.GetLastUseRecency(key)
				atomic.AddInt64(&reads, 2)
			}
		}(int64(i))
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < increments; i++ {
		store.IncUseCount(stats.NewKey(
			fmt.Sprintf("ctx-%d", rng.Intn(contexts)),
			fmt.Sprintf("val-%d", rng.Intn(values)),
		))
	}
	writeDuration := time.Since(start)
	close(done)
	wg.Wait()

	flushStart := time.Now()
	if err := store.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
	}
	flushDuration := time.Since(flushStart)

	st := store.Stats()
	fmt.Println("------------------------------------------------")
	fmt.Printf("Increments: %d in %v (%.0f ops/s)\n",
		increments, writeDuration, float64(increments)/writeDuration.Seconds())
	fmt.Printf("Reads:      %d concurrent\n", atomic.LoadInt64(&reads))
	fmt.Printf("Flush:      %v\n", flushDuration)
	fmt.Printf("Resident:   %d units, %d B\n", st.ResidentUnits, st.MemoryUsed)
	fmt.Println("------------------------------------------------")
}
