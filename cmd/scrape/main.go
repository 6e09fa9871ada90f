// Command scrape runs one scraping pass: every configured subreddit and
// Twitter hashtag is walked in parallel, new posts are appended to the
// shared post store, and token symbols are resolved asynchronously.
// Exits 0 when at least one source completed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"memecoin-radar/internal/config"
	"memecoin-radar/internal/scrape"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/tokenid"
)

func main() {
	config.LoadEnvFile()

	dataDir := flag.String("data-dir", config.EnvOr("DATA_DIR", "data"), "Directory for the JSON document stores")
	sources := flag.String("sources", "", "Comma-separated subreddit names (default: built-in list)")
	hashtags := flag.String("twitter-hashtags", config.EnvOr("TWITTER_HASHTAGS", ""), "Comma-separated Twitter hashtags without # (\"default\" for the built-in list)")
	cutoffAge := flag.Duration("cutoff-age", config.EnvDurationOr("CUTOFF_AGE", 14*24*time.Hour), "Maximum post age")
	wallBudget := flag.Duration("wall-budget", config.EnvDurationOr("WALL_BUDGET", 3*time.Minute), "Wall-clock budget per source")
	maxSources := flag.Int("max-concurrent-sources", config.EnvIntOr("MAX_CONCURRENT_SOURCES", 3), "Parallel source tasks")
	maxPages := flag.Int("max-pages", config.EnvIntOr("MAX_PAGES_PER_SOURCE", 3), "Listing pages per source")
	commentsPerPost := flag.Int("comments-per-post", config.EnvIntOr("COMMENTS_PER_POST", 10), "Comment texts collected per post")
	scrollsPerPage := flag.Int("scrolls-per-page", config.EnvIntOr("SCROLLS_PER_PAGE", 3), "Scrolls between listing extractions")
	flag.Parse()

	logger := log.New(os.Stdout, "[scrape] ", log.LstdFlags)

	browserKey := os.Getenv(config.EnvBrowserCashKey)
	if browserKey == "" {
		logger.Fatalf("%s is required", config.EnvBrowserCashKey)
	}

	posts := store.NewPostStore(filepath.Join(*dataDir, config.PostsFile))

	var resolver scrape.TokenResolver
	var tokenResolver *tokenid.Resolver
	if agentKey := os.Getenv(config.EnvAgentKey); agentKey != "" {
		oracle, err := tokenid.NewAgentOracle(tokenid.AgentConfig{APIKey: agentKey})
		if err != nil {
			logger.Fatalf("create oracle: %v", err)
		}
		tokenResolver, err = tokenid.NewResolver(tokenid.Options{
			Store:  posts,
			Oracle: oracle,
			Logger: logger,
		})
		if err != nil {
			logger.Fatalf("create resolver: %v", err)
		}
		resolver = tokenResolver
	} else {
		logger.Printf("%s not set, oracle disabled, fast path only", config.EnvAgentKey)
		var err error
		tokenResolver, err = tokenid.NewResolver(tokenid.Options{Store: posts, Logger: logger})
		if err != nil {
			logger.Fatalf("create resolver: %v", err)
		}
		resolver = tokenResolver
	}

	coordinator, err := scrape.New(scrape.Options{
		Sources:  buildSources(*sources, *hashtags),
		Fetchers: scrape.NewBrowserCashFactory(scrape.BrowserCashConfig{APIKey: browserKey}),
		Store:    posts,
		Resolver: resolver,
		Limits: scrape.Limits{
			MaxConcurrentSources: *maxSources,
			MaxPagesPerSource:    *maxPages,
			CommentsPerPost:      *commentsPerPost,
			ScrollsPerPage:       *scrollsPerPage,
		},
		CutoffAge:  *cutoffAge,
		WallBudget: *wallBudget,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("create coordinator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %v, stopping workers", sig)
		cancel()

		sig = <-sigCh
		logger.Printf("received second %v, forcing exit", sig)
		os.Exit(1)
	}()

	stats := coordinator.Run(ctx)
	logger.Printf("waiting for pending symbol resolutions")
	tokenResolver.Wait()

	fmt.Printf("scrape finished: stored=%d duplicates=%d dropped=%d failed_sources=%d\n",
		stats.PostsStored, stats.Duplicates, stats.Dropped, stats.SourcesFailed)

	if stats.SourcesFailed > 0 && stats.PostsStored == 0 {
		os.Exit(1)
	}
}

// buildSources combines the subreddit and hashtag flags. With neither set
// the coordinator falls back to the default subreddit list.
func buildSources(subreddits, hashtags string) []scrape.Source {
	var sources []scrape.Source
	for _, name := range splitCSV(subreddits) {
		sources = append(sources, scrape.Source{
			Name:     name,
			Tag:      "r/" + name,
			Platform: scrape.PlatformReddit,
		})
	}
	if hashtags == "default" {
		return append(sources, scrape.TwitterSources()...)
	}
	for _, name := range splitCSV(hashtags) {
		sources = append(sources, scrape.Source{
			Name:     strings.TrimPrefix(name, "#"),
			Tag:      "#" + strings.TrimPrefix(name, "#"),
			Platform: scrape.PlatformTwitter,
		})
	}
	return sources
}

func splitCSV(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
