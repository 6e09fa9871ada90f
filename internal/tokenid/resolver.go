// Package tokenid attributes scraped posts to token symbols. A cheap
// pattern match handles the common case; everything else is sent to a
// slow network oracle behind a capacity-1 queue.
package tokenid

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
	"memecoin-radar/internal/store"
)

// cashtagPattern matches $SYMBOL tickers in post text.
var cashtagPattern = regexp.MustCompile(`\$([A-Z0-9]{2,5})\b`)

// stopwords are common words that look like cashtags when shouted.
var stopwords = map[string]struct{}{
	"THE": {}, "THIS": {}, "THAT": {}, "WITH": {},
	"FROM": {}, "HAVE": {}, "HERE": {}, "THERE": {},
}

// Oracle identifies a token symbol from free-form post text. An empty
// symbol with a nil error is a definitive miss.
type Oracle interface {
	Identify(ctx context.Context, prompt string) (string, error)
}

// Options configures a Resolver.
type Options struct {
	Store  *store.PostStore
	Oracle Oracle // optional; fast path only when nil

	// CommentsInPrompt caps how many comments go into the oracle prompt.
	CommentsInPrompt int
	// OracleTimeout bounds one oracle round trip including queue wait.
	OracleTimeout time.Duration

	Logger *log.Logger
}

// Resolver memoizes symbol resolution by post id and serializes oracle
// calls through a single global slot. The external service rate-limits
// aggressively, so waiting callers line up in FIFO order.
type Resolver struct {
	opts   Options
	logger *log.Logger

	mu    sync.Mutex
	cache map[int64]string // post id -> symbol ("" = resolved miss)

	// Capacity-1 semaphore. Channel sends queue fairly in arrival order.
	slot chan struct{}

	wg sync.WaitGroup
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("post store is required")
	}
	if opts.CommentsInPrompt <= 0 {
		opts.CommentsInPrompt = 5
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Resolver{
		opts:   opts,
		logger: opts.Logger,
		cache:  make(map[int64]string),
		slot:   make(chan struct{}, 1),
	}, nil
}

// ResolveAsync resolves the post's symbol in the background and writes it
// back into the post store. Pending resolutions can be awaited with Wait.
func (r *Resolver) ResolveAsync(post *domain.Post) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.OracleTimeout)
		defer cancel()

		symbol, err := r.Resolve(ctx, post)
		if err != nil {
			r.logger.Printf("[tokenid] post %d: %v", post.ID, err)
			return
		}
		if symbol == "" {
			return
		}
		err = r.opts.Store.Update(post.ID, func(p *domain.Post) {
			p.TokenSymbol = symbol
		})
		if err != nil {
			r.logger.Printf("[tokenid] post %d: store symbol %s: %v", post.ID, symbol, err)
		}
	}()
}

// Wait blocks until all in-flight async resolutions finish.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Resolve returns the post's token symbol, or "" when none could be
// identified. Results are memoized by post id, so repeated calls never
// hit the oracle twice.
func (r *Resolver) Resolve(ctx context.Context, post *domain.Post) (string, error) {
	r.mu.Lock()
	if symbol, ok := r.cache[post.ID]; ok {
		r.mu.Unlock()
		return symbol, nil
	}
	r.mu.Unlock()

	text := post.Title
	if text == "" {
		// Tweets carry no title.
		text = post.Content
	}
	if symbol, ok := FastPath(text); ok {
		observability.RecordResolution("fast_path")
		r.memoize(post.ID, symbol)
		return symbol, nil
	}

	if r.opts.Oracle == nil {
		observability.RecordResolution("miss")
		r.memoize(post.ID, "")
		return "", nil
	}

	symbol, err := r.askOracle(ctx, post)
	if err != nil {
		observability.RecordResolution("error")
		return "", err
	}
	if symbol == "" {
		observability.RecordResolution("miss")
	} else {
		observability.RecordResolution("oracle")
	}
	r.memoize(post.ID, symbol)
	return symbol, nil
}

func (r *Resolver) askOracle(ctx context.Context, post *domain.Post) (string, error) {
	waitStart := time.Now()
	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for oracle slot: %w", ctx.Err())
	}
	defer func() { <-r.slot }()
	observability.RecordResolverWait(time.Since(waitStart).Seconds())

	prompt := buildPrompt(post, r.opts.CommentsInPrompt)

	var symbol string
	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		var err error
		symbol, err = r.opts.Oracle.Identify(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	return Normalize(symbol), nil
}

func (r *Resolver) memoize(id int64, symbol string) {
	r.mu.Lock()
	r.cache[id] = symbol
	r.mu.Unlock()
}

// FastPath extracts a token symbol from post text when it carries exactly
// one distinct $SYMBOL cashtag.
func FastPath(text string) (string, bool) {
	matches := cashtagPattern.FindAllStringSubmatch(text, -1)
	distinct := make(map[string]struct{})
	for _, m := range matches {
		symbol := m[1]
		if _, stop := stopwords[symbol]; stop {
			continue
		}
		distinct[symbol] = struct{}{}
	}
	if len(distinct) != 1 {
		return "", false
	}
	for symbol := range distinct {
		return symbol, true
	}
	return "", false
}

// Normalize uppercases an oracle answer and rejects anything that does
// not look like a ticker.
func Normalize(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.TrimPrefix(symbol, "$")
	if symbol == "" || symbol == "NONE" || symbol == "N/A" || symbol == "UNKNOWN" {
		return ""
	}
	if len(symbol) < 2 || len(symbol) > 10 {
		return ""
	}
	for _, c := range symbol {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return symbol
}

func buildPrompt(post *domain.Post, maxComments int) string {
	var b strings.Builder
	b.WriteString("Identify the cryptocurrency token ticker this post is about. ")
	b.WriteString("Answer with the ticker only, or NONE if there is no single token.\n\n")
	b.WriteString("Title: ")
	b.WriteString(post.Title)
	if post.Content != "" {
		b.WriteString("\nContent: ")
		b.WriteString(post.Content)
	}
	if len(post.Comments) > 0 {
		n := len(post.Comments)
		if n > maxComments {
			n = maxComments
		}
		b.WriteString("\nComments: ")
		b.WriteString(strings.Join(post.Comments[:n], " | "))
	}
	return b.String()
}
