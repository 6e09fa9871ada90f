// Package sentiment groups scraped posts by token symbol and derives
// per-token sentiment, engagement and a trade recommendation.
package sentiment

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/store"
)

// Config parameterizes the aggregation formulas. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// Confidence blend weights. Must sum to 1.
	RawWeight        float64
	AggregateWeight  float64
	EngagementWeight float64

	// CommentWeight scales comment counts against upvotes.
	CommentWeight float64
	// GroupBonus is added to engagement per post in the group.
	GroupBonus float64
	// EngagementRef is the activity level that saturates engagement at 1.
	EngagementRef float64
}

// DefaultConfig returns the standard aggregation parameters.
func DefaultConfig() Config {
	return Config{
		RawWeight:        0.3,
		AggregateWeight:  0.5,
		EngagementWeight: 0.2,
		CommentWeight:    0.5,
		GroupBonus:       5,
		EngagementRef:    500,
	}
}

// Aggregator recomputes the full set of TokenRecords from the post store.
type Aggregator struct {
	cfg    Config
	scorer Scorer
	logger *log.Logger
}

// New creates an Aggregator. A nil scorer falls back to DefaultScorer.
func New(scorer Scorer, cfg Config, logger *log.Logger) *Aggregator {
	if scorer == nil {
		scorer = DefaultScorer()
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{cfg: cfg, scorer: scorer, logger: logger}
}

// Run loads the post store, aggregates, and atomically replaces the
// sentiment store.
func (a *Aggregator) Run(posts *store.PostStore, out *store.SentimentStore) error {
	all, err := posts.Load()
	if err != nil {
		return fmt.Errorf("load posts: %w", err)
	}

	records := a.Aggregate(all)
	if err := out.Replace(records); err != nil {
		return fmt.Errorf("write sentiment: %w", err)
	}
	a.logger.Printf("[sentiment] aggregated %d posts into %d token records", len(all), len(records))
	return nil
}

// Aggregate groups posts by token symbol and scores each group. Posts
// without a symbol are discarded. Records come back sorted by symbol for
// stable output.
func (a *Aggregator) Aggregate(posts []*domain.Post) []*domain.TokenRecord {
	groups := make(map[string][]*domain.Post)
	for _, p := range posts {
		if p.TokenSymbol == "" {
			continue
		}
		groups[p.TokenSymbol] = append(groups[p.TokenSymbol], p)
	}

	symbols := make([]string, 0, len(groups))
	for s := range groups {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	records := make([]*domain.TokenRecord, 0, len(symbols))
	for _, symbol := range symbols {
		records = append(records, a.scoreGroup(symbol, groups[symbol]))
	}
	return records
}

func (a *Aggregator) scoreGroup(symbol string, group []*domain.Post) *domain.TokenRecord {
	var rawSum float64
	var weightedSum, weightTotal float64
	var plainSum float64
	var upvotes, comments int

	for _, p := range group {
		rawSum += a.scorer.Score(p.Title + " " + p.Content)

		full := a.scorer.Score(p.Title + " " + p.Content + strings.Join(p.Comments, " "))
		w := math.Log(1+float64(p.Upvotes)) + a.cfg.CommentWeight*math.Log(1+float64(p.CommentCount))
		weightedSum += w * full
		weightTotal += w
		plainSum += full

		upvotes += p.Upvotes
		comments += p.CommentCount
	}

	n := float64(len(group))
	raw := round4(unit(rawSum / n))

	// Zero total weight (no upvotes, no comments anywhere) degrades to a
	// plain mean.
	var agg float64
	if weightTotal > 0 {
		agg = round4(unit(weightedSum / weightTotal))
	} else {
		agg = round4(unit(plainSum / n))
	}

	activity := float64(upvotes) + a.cfg.CommentWeight*float64(comments) + a.cfg.GroupBonus*n
	engagement := round4(math.Min(1, activity/a.cfg.EngagementRef))

	blend := a.cfg.RawWeight*raw + a.cfg.AggregateWeight*agg + a.cfg.EngagementWeight*engagement
	confidence := int(math.Round(100 * clamp01(blend)))

	return &domain.TokenRecord{
		Symbol:             symbol,
		Posts:              group,
		RawSentiment:       raw,
		AggregateSentiment: agg,
		Engagement:         engagement,
		Confidence:         confidence,
		Recommendation:     domain.RecommendationFor(confidence),
	}
}

// unit maps a score in [-1, 1] onto [0, 1].
func unit(x float64) float64 {
	return (x + 1) / 2
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
