package scrape

// Source describes one scraping target. Name is the platform-specific
// location (a subreddit for reddit, a hashtag for twitter), Tag is the
// value stored in each Post's source field.
type Source struct {
	Name     string
	Tag      string
	Platform string
}

// Supported platforms.
const (
	PlatformReddit  = "reddit"
	PlatformTwitter = "twitter"
)

// RedditSources returns the default set of memecoin-heavy subreddits.
func RedditSources() []Source {
	names := []string{
		"pumpfun",
		"CryptoMoonShots",
		"altcoin",
		"SolanaMemeCoins",
		"memecoin",
		"SatoshiStreetBets",
		"solana",
	}
	sources := make([]Source, 0, len(names))
	for _, n := range names {
		sources = append(sources, Source{
			Name:     n,
			Tag:      "r/" + n,
			Platform: PlatformReddit,
		})
	}
	return sources
}

// TwitterSources returns the default set of monitored hashtags.
func TwitterSources() []Source {
	names := []string{
		"SolanaMemeCoins",
		"memecoin",
		"pumpfunlaunch",
		"CryptoGains",
		"pumpfun",
	}
	sources := make([]Source, 0, len(names))
	for _, n := range names {
		sources = append(sources, Source{
			Name:     n,
			Tag:      "#" + n,
			Platform: PlatformTwitter,
		})
	}
	return sources
}
