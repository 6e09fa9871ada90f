package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/watch"
)

type fixture struct {
	sup   *Supervisor
	bus   *eventbus.Bus
	sub   *eventbus.Subscriber
	posts *store.PostStore
	coins *store.CoinStore
}

func okStage(name string) Stage {
	return NewFuncStage(name, func(ctx context.Context, onLine func(string)) error {
		return nil
	})
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()

	if opts.Posts == nil {
		opts.Posts = store.NewPostStore(filepath.Join(dir, "posts.json"))
	}
	if opts.Coins == nil {
		opts.Coins = store.NewCoinStore(filepath.Join(dir, "coin-data.json"))
	}
	if opts.Scraper == nil {
		opts.Scraper = okStage("scrape")
	}
	if opts.Analyzer == nil {
		opts.Analyzer = okStage("analyze")
	}
	if opts.Enricher == nil {
		opts.Enricher = okStage("enrich")
	}
	opts.Bus = eventbus.New(64)

	sup, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}

	sub := opts.Bus.Subscribe()
	t.Cleanup(func() { opts.Bus.Unsubscribe(sub) })

	return &fixture{sup: sup, bus: opts.Bus, sub: sub, posts: opts.Posts, coins: opts.Coins}
}

// nextOf reads events until one of the given types arrives, returning it.
// Chatter like scrapeLog and scrapeUpdate is skipped.
func (f *fixture) nextOf(t *testing.T, types ...eventbus.Type) eventbus.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-f.sub.C():
			for _, want := range types {
				if ev.Type == want {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", types)
		}
	}
}

func (f *fixture) expectNo(t *testing.T, unwanted eventbus.Type, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case ev := <-f.sub.C():
			if ev.Type == unwanted {
				t.Fatalf("unexpected %s event: %+v", unwanted, ev)
			}
		case <-deadline:
			return
		}
	}
}

func waitForState(t *testing.T, sup *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sup.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, sup.State())
}

func TestSupervisor_FullRunEndsWithCoinsUpdated(t *testing.T) {
	var analyzed, enriched int32
	f := newFixture(t, Options{
		Analyzer: NewFuncStage("analyze", func(ctx context.Context, onLine func(string)) error {
			atomic.AddInt32(&analyzed, 1)
			return nil
		}),
		Enricher: NewFuncStage("enrich", func(ctx context.Context, onLine func(string)) error {
			atomic.AddInt32(&enriched, 1)
			return nil
		}),
	})

	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}

	stopped := f.nextOf(t, eventbus.TypeScrapeStopped)
	if stopped.ExitCode == nil || *stopped.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", stopped.ExitCode)
	}
	f.nextOf(t, eventbus.TypeCoinsUpdated)

	waitForState(t, f.sup, StateIdle)
	if atomic.LoadInt32(&analyzed) != 1 || atomic.LoadInt32(&enriched) != 1 {
		t.Fatalf("expected one analyze and one enrich run, got %d/%d", analyzed, enriched)
	}
}

func TestSupervisor_StartResetsPostStore(t *testing.T) {
	var seenAtScrape int32 = -1
	var posts *store.PostStore

	scraper := NewFuncStage("scrape", func(ctx context.Context, onLine func(string)) error {
		loaded, err := posts.Load()
		if err != nil {
			return err
		}
		atomic.StoreInt32(&seenAtScrape, int32(len(loaded)))
		return nil
	})

	dir := t.TempDir()
	posts = store.NewPostStore(filepath.Join(dir, "posts.json"))
	if err := posts.Append(&domain.Post{ID: 1, Source: "r/solana", Link: "old"}); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, Options{Scraper: scraper, Posts: posts})
	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}
	f.nextOf(t, eventbus.TypeCoinsUpdated)

	if got := atomic.LoadInt32(&seenAtScrape); got != 0 {
		t.Fatalf("scraper saw %d leftover posts, store must be reset first", got)
	}
}

func TestSupervisor_SecondStartReturnsErrBusy(t *testing.T) {
	release := make(chan struct{})
	scraper := NewFuncStage("scrape", func(ctx context.Context, onLine func(string)) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	f := newFixture(t, Options{Scraper: scraper})
	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sup.Start(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(release)
	waitForState(t, f.sup, StateIdle)
}

func TestSupervisor_StopMidScrapeProceedsToProcessing(t *testing.T) {
	scraper := NewFuncStage("scrape", func(ctx context.Context, onLine func(string)) error {
		onLine("scraping r/solana")
		<-ctx.Done()
		return ctx.Err()
	})

	f := newFixture(t, Options{Scraper: scraper})
	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}
	f.nextOf(t, eventbus.TypeScrapeLog)

	if err := f.sup.Stop(); err != nil {
		t.Fatal(err)
	}

	// Terminated scraper still flows into processing, in order.
	stopped := f.nextOf(t, eventbus.TypeScrapeStopped, eventbus.TypeCoinsUpdated)
	if stopped.Type != eventbus.TypeScrapeStopped {
		t.Fatalf("expected scrapeStopped before coinsUpdated, got %s", stopped.Type)
	}
	if stopped.ExitCode == nil || *stopped.ExitCode != -1 {
		t.Fatalf("expected signal exit code -1, got %+v", stopped.ExitCode)
	}
	f.nextOf(t, eventbus.TypeCoinsUpdated)
	waitForState(t, f.sup, StateIdle)
}

func TestSupervisor_StopWhenIdle(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.sup.Stop(); !errors.Is(err, ErrNotScraping) {
		t.Fatalf("expected ErrNotScraping, got %v", err)
	}
}

func TestSupervisor_StageFailurePublishesErrorAndGoesIdle(t *testing.T) {
	var enriched int32
	f := newFixture(t, Options{
		Analyzer: NewFuncStage("analyze", func(ctx context.Context, onLine func(string)) error {
			return errors.New("sentiment store unwritable")
		}),
		Enricher: NewFuncStage("enrich", func(ctx context.Context, onLine func(string)) error {
			atomic.AddInt32(&enriched, 1)
			return nil
		}),
	})

	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}

	ev := f.nextOf(t, eventbus.TypeError)
	if ev.Stage != "analyze" {
		t.Fatalf("expected the analyze stage in the error event, got %q", ev.Stage)
	}
	waitForState(t, f.sup, StateIdle)
	if atomic.LoadInt32(&enriched) != 0 {
		t.Fatal("enricher must not run after an analyzer failure")
	}

	// A failed run does not wedge the supervisor.
	if _, err := f.sup.Start(); err != nil && !errors.Is(err, ErrBusy) {
		t.Fatalf("restart after failure: %v", err)
	}
}

func TestSupervisor_DebounceCoalescesFileChanges(t *testing.T) {
	dir := t.TempDir()
	posts := store.NewPostStore(filepath.Join(dir, "posts.json"))

	watcher, err := watch.New(posts.Path(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	var analyzed int32
	f := newFixture(t, Options{
		Posts:   posts,
		Watcher: watcher,
		Analyzer: NewFuncStage("analyze", func(ctx context.Context, onLine func(string)) error {
			atomic.AddInt32(&analyzed, 1)
			return nil
		}),
		DebounceWindow: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.sup.Run(ctx)
	time.Sleep(100 * time.Millisecond) // let the watcher attach

	// A burst of writes inside the debounce window triggers one run.
	for i := int64(1); i <= 3; i++ {
		if err := posts.Append(&domain.Post{ID: i, Source: "r/solana", Link: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	f.nextOf(t, eventbus.TypeCoinsUpdated)
	f.expectNo(t, eventbus.TypeCoinsUpdated, 600*time.Millisecond)

	if got := atomic.LoadInt32(&analyzed); got != 1 {
		t.Fatalf("expected 1 coalesced processing run, got %d", got)
	}
}

func TestSupervisor_EmptiedStoreDoesNotReprocess(t *testing.T) {
	dir := t.TempDir()
	posts := store.NewPostStore(filepath.Join(dir, "posts.json"))

	watcher, err := watch.New(posts.Path(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	f := newFixture(t, Options{
		Posts:          posts,
		Watcher:        watcher,
		DebounceWindow: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.sup.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	// Resetting to an empty array is a visible change but not a reason to
	// wipe derived coin data.
	if err := posts.Reset(); err != nil {
		t.Fatal(err)
	}

	f.nextOf(t, eventbus.TypeScrapeUpdate)
	f.expectNo(t, eventbus.TypeCoinsUpdated, 500*time.Millisecond)
	if f.sup.State() != StateIdle {
		t.Fatalf("expected Idle, got %s", f.sup.State())
	}
}

func TestSupervisor_ChangesDuringProcessingRunAgain(t *testing.T) {
	dir := t.TempDir()
	posts := store.NewPostStore(filepath.Join(dir, "posts.json"))

	watcher, err := watch.New(posts.Path(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	gate := make(chan struct{})
	var analyzed int32
	f := newFixture(t, Options{
		Posts:   posts,
		Watcher: watcher,
		Analyzer: NewFuncStage("analyze", func(ctx context.Context, onLine func(string)) error {
			atomic.AddInt32(&analyzed, 1)
			<-gate
			return nil
		}),
		DebounceWindow: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.sup.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := posts.Append(&domain.Post{ID: 1, Source: "r/solana", Link: "a"}); err != nil {
		t.Fatal(err)
	}
	waitForState(t, f.sup, StateProcessing)

	// A change landing mid-run marks the pass stale.
	if err := posts.Append(&domain.Post{ID: 2, Source: "r/solana", Link: "b"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond) // let the watcher deliver while processing

	gate <- struct{}{} // finish the stale pass
	gate <- struct{}{} // finish the re-run

	f.nextOf(t, eventbus.TypeCoinsUpdated)
	f.nextOf(t, eventbus.TypeCoinsUpdated)
	waitForState(t, f.sup, StateIdle)

	if got := atomic.LoadInt32(&analyzed); got != 2 {
		t.Fatalf("expected 2 analyzer runs, got %d", got)
	}
}

func TestSupervisor_ExecScraperReportsPidEachRun(t *testing.T) {
	scraper := NewExecStage("scrape", "/bin/sh", "-c", "sleep 0.1")
	f := newFixture(t, Options{Scraper: scraper})

	pid1, err := f.sup.Start()
	if err != nil {
		t.Fatal(err)
	}
	if pid1 <= 0 {
		t.Fatalf("expected a child pid on the first run, got %d", pid1)
	}
	if running, pid := f.sup.Status(); !running || pid != pid1 {
		t.Fatalf("status during scrape: running=%v pid=%d, want true/%d", running, pid, pid1)
	}
	f.nextOf(t, eventbus.TypeCoinsUpdated)
	waitForState(t, f.sup, StateIdle)

	// The second run delivers its own pid to its own Start call.
	pid2, err := f.sup.Start()
	if err != nil {
		t.Fatal(err)
	}
	if pid2 <= 0 {
		t.Fatalf("expected a child pid on the second run, got %d", pid2)
	}
	f.nextOf(t, eventbus.TypeCoinsUpdated)
	waitForState(t, f.sup, StateIdle)

	if _, pid := f.sup.Status(); pid != 0 {
		t.Fatalf("pid must clear once the scraper exits, got %d", pid)
	}
}

func TestSupervisor_ThreadUpdateFromSourceTaggedLines(t *testing.T) {
	scraper := NewFuncStage("scrape", func(ctx context.Context, onLine func(string)) error {
		onLine("collected 4 posts from r/CryptoMoonShots")
		onLine("no source tag in this line")
		return nil
	})

	f := newFixture(t, Options{Scraper: scraper})
	if _, err := f.sup.Start(); err != nil {
		t.Fatal(err)
	}

	ev := f.nextOf(t, eventbus.TypeThreadUpdate)
	if ev.Source != "r/CryptoMoonShots" {
		t.Fatalf("expected the source tag extracted, got %q", ev.Source)
	}
}
