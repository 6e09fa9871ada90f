// Package archive mirrors the JSON document stores into durable
// databases: PostgreSQL keeps the full post history across runs, while
// ClickHouse accumulates per-run sentiment snapshots for analytics. Both
// are optional; the pipeline works without them.
package archive

import (
	"context"
	"errors"
	"time"

	"memecoin-radar/internal/domain"
)

// ErrNotFound indicates no matching archived rows.
var ErrNotFound = errors.New("archive: not found")

// PostArchive persists scraped posts across pipeline runs. The JSON post
// store is reset on every scrape; the archive is not.
type PostArchive interface {
	// InsertPosts stores the posts, silently skipping (source, link)
	// pairs already archived. Returns the number of new rows.
	InsertPosts(ctx context.Context, posts []*domain.Post) (int, error)

	// GetBySource returns archived posts for one source tag, oldest first.
	GetBySource(ctx context.Context, source string) ([]*domain.Post, error)

	// CountPosts returns the total number of archived posts.
	CountPosts(ctx context.Context) (int64, error)
}

// SnapshotArchive records the sentiment output of each pipeline pass.
type SnapshotArchive interface {
	// InsertSnapshots stores one row per token record, stamped with the
	// pass time.
	InsertSnapshots(ctx context.Context, runAt time.Time, records []*domain.TokenRecord) error

	// TopSymbols returns the highest-confidence symbols since the given
	// time, best first.
	TopSymbols(ctx context.Context, since time.Time, limit int) ([]SymbolStat, error)
}

// SymbolStat is one row of the TopSymbols report.
type SymbolStat struct {
	Symbol        string
	AvgConfidence float64
	Snapshots     uint64
}
