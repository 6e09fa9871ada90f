// Package scrape runs parallel source workers against a shared post store
// with process-wide deduplication and id assignment.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
	"memecoin-radar/internal/store"
)

// Limits bounds a scraping run.
type Limits struct {
	MaxConcurrentSources int
	MaxPagesPerSource    int
	CommentsPerPost      int
	ScrollsPerPage       int
}

// DefaultLimits returns the standard scraping limits.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentSources: 3,
		MaxPagesPerSource:    3,
		CommentsPerPost:      10,
		ScrollsPerPage:       3,
	}
}

// Stats summarizes one coordinator run.
type Stats struct {
	PostsStored   int64
	Duplicates    int64
	Dropped       int64
	SourcesFailed int64
}

// TokenResolver receives every stored post for asynchronous symbol
// identification.
type TokenResolver interface {
	ResolveAsync(post *domain.Post)
}

// SourceWorker scrapes a single source through its own PageFetcher and
// hands candidates to the shared intake.
type SourceWorker interface {
	Scrape(ctx context.Context, f PageFetcher, src Source, in *Intake) error
}

// Options configures a Coordinator.
type Options struct {
	Sources  []Source
	Fetchers FetcherFactory
	Store    *store.PostStore
	Resolver TokenResolver // optional

	Limits     Limits
	CutoffAge  time.Duration // maximum post age, default 14 days
	WallBudget time.Duration // wall-clock budget per source, default 3 minutes

	Logger *log.Logger
}

// Coordinator fans out one worker task per source, bounded by
// MaxConcurrentSources, and funnels every accepted post through a shared
// Intake.
type Coordinator struct {
	opts   Options
	logger *log.Logger
	seen   *store.SeenSet
	ids    *store.IDCounter
}

// New creates a Coordinator. The seen-set and id counter are warmed from
// the post store so reruns never duplicate or reuse ids.
func New(opts Options) (*Coordinator, error) {
	if opts.Fetchers == nil {
		return nil, fmt.Errorf("fetcher factory is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("post store is required")
	}
	if len(opts.Sources) == 0 {
		opts.Sources = RedditSources()
	}
	if opts.Limits.MaxConcurrentSources <= 0 {
		opts.Limits.MaxConcurrentSources = DefaultLimits().MaxConcurrentSources
	}
	if opts.Limits.MaxPagesPerSource <= 0 {
		opts.Limits.MaxPagesPerSource = DefaultLimits().MaxPagesPerSource
	}
	if opts.Limits.CommentsPerPost < 0 {
		opts.Limits.CommentsPerPost = 0
	} else if opts.Limits.CommentsPerPost == 0 {
		opts.Limits.CommentsPerPost = DefaultLimits().CommentsPerPost
	}
	if opts.Limits.ScrollsPerPage <= 0 {
		opts.Limits.ScrollsPerPage = DefaultLimits().ScrollsPerPage
	}
	if opts.CutoffAge <= 0 {
		opts.CutoffAge = 14 * 24 * time.Hour
	}
	if opts.WallBudget <= 0 {
		opts.WallBudget = 3 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	keys, err := opts.Store.Keys()
	if err != nil {
		return nil, fmt.Errorf("warm seen-set: %w", err)
	}
	seen := store.NewSeenSet()
	seen.Warm(keys)

	lastID, err := opts.Store.MaxID()
	if err != nil {
		return nil, fmt.Errorf("seed id counter: %w", err)
	}

	return &Coordinator{
		opts:   opts,
		logger: opts.Logger,
		seen:   seen,
		ids:    store.NewIDCounter(lastID),
	}, nil
}

// Run scrapes all configured sources and blocks until every source task
// has finished or the context is cancelled. A failure on one source never
// aborts its siblings.
func (c *Coordinator) Run(ctx context.Context) Stats {
	in := &Intake{
		store:     c.opts.Store,
		seen:      c.seen,
		ids:       c.ids,
		resolver:  c.opts.Resolver,
		logger:    c.logger,
		cutoffAge: c.opts.CutoffAge,
	}

	sem := make(chan struct{}, c.opts.Limits.MaxConcurrentSources)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, src := range c.opts.Sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if err := c.scrapeSource(ctx, src, in); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					c.logger.Printf("[scrape] %s: stopped: %v", src.Tag, err)
					return
				}
				failed.Add(1)
				observability.RecordSourceFailure(src.Tag)
				c.logger.Printf("[scrape] %s: failed: %v", src.Tag, err)
			}
		}(src)
	}
	wg.Wait()

	stats := Stats{
		PostsStored:   in.stored.Load(),
		Duplicates:    in.duplicates.Load(),
		Dropped:       in.dropped.Load(),
		SourcesFailed: failed.Load(),
	}
	c.logger.Printf("[scrape] run complete: stored=%d duplicates=%d dropped=%d failed_sources=%d",
		stats.PostsStored, stats.Duplicates, stats.Dropped, stats.SourcesFailed)
	if stats.SourcesFailed < int64(len(c.opts.Sources)) {
		observability.DefaultMetrics.LastSuccessfulScrape.SetToCurrentTime()
	}
	return stats
}

func (c *Coordinator) scrapeSource(ctx context.Context, src Source, in *Intake) error {
	srcCtx, cancel := context.WithTimeout(ctx, c.opts.WallBudget)
	defer cancel()

	fetcher, err := c.opts.Fetchers.New(srcCtx)
	if err != nil {
		return fmt.Errorf("acquire fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			c.logger.Printf("[scrape] %s: close fetcher: %v", src.Tag, err)
		}
	}()

	worker, err := c.workerFor(src)
	if err != nil {
		return err
	}

	c.logger.Printf("[scrape] %s: starting", src.Tag)
	return worker.Scrape(srcCtx, fetcher, src, in)
}

func (c *Coordinator) workerFor(src Source) (SourceWorker, error) {
	switch src.Platform {
	case PlatformReddit, "":
		return NewRedditWorker(c.opts.Limits, c.logger), nil
	case PlatformTwitter:
		return NewTwitterWorker(c.opts.Limits, c.logger), nil
	default:
		return nil, fmt.Errorf("no worker for platform %q", src.Platform)
	}
}

// Intake is the shared funnel every worker pushes posts through. Admission
// pairs the duplicate check with id assignment; commit appends to the
// store with retry and hands the post to the resolver.
type Intake struct {
	store     *store.PostStore
	seen      *store.SeenSet
	ids       *store.IDCounter
	resolver  TokenResolver
	logger    *log.Logger
	cutoffAge time.Duration

	stored     atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64
}

// CutoffAge is the maximum post age for this run.
func (in *Intake) CutoffAge() time.Duration {
	return in.cutoffAge
}

// Admit claims the key and assigns an id. A false return means the key was
// already seen; the caller must skip the post.
func (in *Intake) Admit(key domain.PostKey) (int64, bool) {
	if !in.seen.Add(key) {
		in.duplicates.Add(1)
		observability.RecordDuplicate(key.Source)
		return 0, false
	}
	return in.ids.Next(), true
}

// Commit appends the post to the store, retrying transient failures. Posts
// that still fail are dropped and logged. Successfully stored posts are
// submitted to the resolver.
func (in *Intake) Commit(ctx context.Context, post *domain.Post) {
	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		return in.store.Append(post)
	})
	if err != nil {
		in.dropped.Add(1)
		observability.RecordPostDropped(post.Source)
		in.logger.Printf("[scrape] %s: dropping post %d after failed append: %v", post.Source, post.ID, err)
		return
	}

	in.stored.Add(1)
	observability.RecordPostScraped(post.Source)
	if in.resolver != nil {
		in.resolver.ResolveAsync(post)
	}
}
