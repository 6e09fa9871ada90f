package scrape

import "context"

// PageFetcher is the browser transport a worker drives. Implementations
// own one remote browser session; each source task gets an isolated one.
type PageFetcher interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script in the page and returns its JSON-decoded result.
	Evaluate(ctx context.Context, script string) (any, error)

	// Close releases the underlying browser session.
	Close() error
}

// FetcherFactory creates one PageFetcher per source task.
type FetcherFactory interface {
	New(ctx context.Context) (PageFetcher, error)
}

// FetcherFunc adapts a function to the FetcherFactory interface.
type FetcherFunc func(ctx context.Context) (PageFetcher, error)

// New calls f.
func (f FetcherFunc) New(ctx context.Context) (PageFetcher, error) {
	return f(ctx)
}
