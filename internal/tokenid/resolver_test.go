package tokenid

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/store"
)

func TestFastPath(t *testing.T) {
	cases := []struct {
		title string
		want  string
		ok    bool
	}{
		{"$PEP mooning", "PEP", true},
		{"buy $BONK now, $BONK is going up", "BONK", true},
		{"$PEP vs $BONK which one", "", false}, // two distinct symbols
		{"no cashtag here", "", false},
		{"$THE big announcement", "", false},         // stopword
		{"$THE word but also $WIF", "WIF", true},     // stopword filtered out
		{"price is $100 today", "100", true},         // digits satisfy the pattern
		{"lowercase $pep is ignored", "", false},     // pattern is uppercase only
		{"$TOOLONGSYM is not a ticker", "", false},   // over 5 chars
		{"$AB23 weird but valid", "AB23", true},
	}
	for _, tc := range cases {
		got, ok := FastPath(tc.title)
		if ok != tc.ok || got != tc.want {
			t.Errorf("FastPath(%q) = (%q, %v), want (%q, %v)", tc.title, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pep", "PEP"},
		{" $bonk ", "BONK"},
		{"NONE", ""},
		{"n/a", ""},
		{"not a ticker", ""},
		{"X", ""},
		{"WAYTOOLONGFORATICKER", ""},
		{"WIF", "WIF"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type fakeOracle struct {
	answer string
	err    error
	delay  time.Duration

	mu         sync.Mutex
	calls      int
	inFlight   int32
	maxInFlight int32
}

func (o *fakeOracle) Identify(ctx context.Context, prompt string) (string, error) {
	cur := atomic.AddInt32(&o.inFlight, 1)
	defer atomic.AddInt32(&o.inFlight, -1)
	for {
		max := atomic.LoadInt32(&o.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&o.maxInFlight, max, cur) {
			break
		}
	}

	o.mu.Lock()
	o.calls++
	o.mu.Unlock()

	if o.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(o.delay):
		}
	}
	return o.answer, o.err
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func newTestResolver(t *testing.T, oracle Oracle) (*Resolver, *store.PostStore) {
	t.Helper()
	posts := store.NewPostStore(filepath.Join(t.TempDir(), "posts.json"))
	r, err := NewResolver(Options{Store: posts, Oracle: oracle})
	if err != nil {
		t.Fatal(err)
	}
	return r, posts
}

func TestResolver_FastPathSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{answer: "WRONG"}
	r, _ := newTestResolver(t, oracle)

	post := &domain.Post{ID: 1, Title: "$PEP mooning"}
	symbol, err := r.Resolve(context.Background(), post)
	if err != nil {
		t.Fatal(err)
	}
	if symbol != "PEP" {
		t.Fatalf("expected PEP, got %q", symbol)
	}
	if oracle.callCount() != 0 {
		t.Fatalf("fast path must not hit the oracle, got %d calls", oracle.callCount())
	}
}

func TestResolver_FastPathReadsContentWhenTitleEmpty(t *testing.T) {
	oracle := &fakeOracle{answer: "WRONG"}
	r, _ := newTestResolver(t, oracle)

	post := &domain.Post{ID: 2, Platform: "twitter", Content: "$WIF to the moon"}
	symbol, err := r.Resolve(context.Background(), post)
	if err != nil {
		t.Fatal(err)
	}
	if symbol != "WIF" {
		t.Fatalf("expected WIF from the content, got %q", symbol)
	}
	if oracle.callCount() != 0 {
		t.Fatalf("fast path must not hit the oracle, got %d calls", oracle.callCount())
	}
}

func TestResolver_MemoizesByPostID(t *testing.T) {
	oracle := &fakeOracle{answer: "BONK"}
	r, _ := newTestResolver(t, oracle)

	post := &domain.Post{ID: 42, Title: "is this thing going up"}
	for i := 0; i < 3; i++ {
		symbol, err := r.Resolve(context.Background(), post)
		if err != nil {
			t.Fatal(err)
		}
		if symbol != "BONK" {
			t.Fatalf("expected BONK, got %q", symbol)
		}
	}
	if oracle.callCount() != 1 {
		t.Fatalf("expected exactly one oracle call, got %d", oracle.callCount())
	}
}

func TestResolver_OracleCallsSerialized(t *testing.T) {
	oracle := &fakeOracle{answer: "WIF", delay: 10 * time.Millisecond}
	r, _ := newTestResolver(t, oracle)

	var wg sync.WaitGroup
	for i := int64(1); i <= 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			post := &domain.Post{ID: id, Title: "no cashtag"}
			if _, err := r.Resolve(context.Background(), post); err != nil {
				t.Errorf("resolve %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if max := atomic.LoadInt32(&oracle.maxInFlight); max != 1 {
		t.Fatalf("oracle concurrency %d, the semaphore must serialize to 1", max)
	}
}

func TestResolver_AsyncUpdatesStore(t *testing.T) {
	oracle := &fakeOracle{answer: "PEP"}
	r, posts := newTestResolver(t, oracle)

	post := &domain.Post{
		ID:        7,
		Source:    "r/solana",
		Link:      "https://example.com/p/7",
		Title:     "what token is this",
		Timestamp: time.Now(),
	}
	if err := posts.Append(post); err != nil {
		t.Fatal(err)
	}

	r.ResolveAsync(post)
	r.Wait()

	stored, err := posts.Load()
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].TokenSymbol != "PEP" {
		t.Fatalf("expected store RMW to set PEP, got %q", stored[0].TokenSymbol)
	}
}

func TestResolver_MissLeavesPostSymbolless(t *testing.T) {
	oracle := &fakeOracle{answer: "NONE"}
	r, posts := newTestResolver(t, oracle)

	post := &domain.Post{ID: 3, Source: "r/solana", Link: "https://example.com/p/3", Title: "nothing here"}
	if err := posts.Append(post); err != nil {
		t.Fatal(err)
	}

	r.ResolveAsync(post)
	r.Wait()

	stored, _ := posts.Load()
	if stored[0].TokenSymbol != "" {
		t.Fatalf("miss must leave post symbol-less, got %q", stored[0].TokenSymbol)
	}
}
