package clickhouse

import (
	"context"
	"fmt"
	"time"

	"memecoin-radar/internal/archive"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
)

// SnapshotStore implements archive.SnapshotArchive using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ archive.SnapshotArchive = (*SnapshotStore)(nil)

// InsertSnapshots batch-inserts one row per token record.
func (s *SnapshotStore) InsertSnapshots(ctx context.Context, runAt time.Time, records []*domain.TokenRecord) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sentiment_snapshots (
			run_at, symbol, raw_sentiment, aggregate_sentiment,
			engagement, confidence, recommendation, post_count
		)
	`)
	if err != nil {
		observability.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start).Seconds(), err)
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}

	for _, r := range records {
		err := batch.Append(
			runAt,
			r.Symbol,
			r.RawSentiment,
			r.AggregateSentiment,
			r.Engagement,
			int32(r.Confidence),
			string(r.Recommendation),
			uint32(len(r.Posts)),
		)
		if err != nil {
			observability.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start).Seconds(), err)
			return fmt.Errorf("append snapshot for %s: %w", r.Symbol, err)
		}
	}

	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_snapshots", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send snapshot batch: %w", err)
	}
	return nil
}

// TopSymbols returns the highest average-confidence symbols since the
// given time.
func (s *SnapshotStore) TopSymbols(ctx context.Context, since time.Time, limit int) ([]archive.SymbolStat, error) {
	if limit <= 0 {
		limit = 20
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, `
		SELECT symbol, avg(confidence) AS avg_confidence, count() AS snapshots
		FROM sentiment_snapshots
		WHERE run_at >= ?
		GROUP BY symbol
		ORDER BY avg_confidence DESC
		LIMIT ?
	`, since, limit)
	observability.RecordDBQuery("clickhouse", "top_symbols", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query top symbols: %w", err)
	}
	defer rows.Close()

	var stats []archive.SymbolStat
	for rows.Next() {
		var st archive.SymbolStat
		if err := rows.Scan(&st.Symbol, &st.AvgConfidence, &st.Snapshots); err != nil {
			return nil, fmt.Errorf("scan symbol stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbol stats: %w", err)
	}
	return stats, nil
}
