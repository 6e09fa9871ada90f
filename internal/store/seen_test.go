package store

import (
	"fmt"
	"sync"
	"testing"

	"memecoin-radar/internal/domain"
)

func TestSeenSet_AddIsAtomic(t *testing.T) {
	seen := NewSeenSet()
	key := domain.PostKey{Source: "r/solana", Link: "https://example.com/p/1"}

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if seen.Add(key) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner for a contested key, got %d", won)
	}
	if seen.Len() != 1 {
		t.Fatalf("expected 1 tracked key, got %d", seen.Len())
	}
}

func TestSeenSet_Warm(t *testing.T) {
	seen := NewSeenSet()
	keys := []domain.PostKey{
		{Source: "A", Link: "1"},
		{Source: "B", Link: "1"},
	}
	seen.Warm(keys)

	for _, k := range keys {
		if seen.Add(k) {
			t.Errorf("warmed key %v should not be addable", k)
		}
	}
	if !seen.Add(domain.PostKey{Source: "C", Link: "1"}) {
		t.Error("fresh key should be addable")
	}
}

func TestIDCounter_StrictlyIncreasing(t *testing.T) {
	ids := NewIDCounter(100)

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	out := make(chan int64, workers*perWorker)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				out <- ids.Next()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]bool)
	var min, max int64
	for id := range out {
		if seen[id] {
			t.Fatalf("id %d handed out twice", id)
		}
		seen[id] = true
		if id <= 100 {
			t.Fatalf("id %d not after seed 100", id)
		}
		if min == 0 || id < min {
			min = id
		}
		if id > max {
			max = id
		}
	}
	if min != 101 || max != 100+workers*perWorker {
		t.Fatalf("expected dense range [101, %d], got [%d, %d]", 100+workers*perWorker, min, max)
	}
}

func ExampleIDCounter() {
	ids := NewIDCounter(0)
	fmt.Println(ids.Next(), ids.Next(), ids.Next())
	// Output: 1 2 3
}
