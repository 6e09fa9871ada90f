package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"memecoin-radar/internal/archive"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
)

// PostArchive implements archive.PostArchive using PostgreSQL.
type PostArchive struct {
	pool *Pool
}

// NewPostArchive creates a new PostArchive.
func NewPostArchive(pool *Pool) *PostArchive {
	return &PostArchive{pool: pool}
}

// Compile-time interface check.
var _ archive.PostArchive = (*PostArchive)(nil)

// InsertPosts archives the posts. Rows whose (source, link) already
// exists are skipped via ON CONFLICT DO NOTHING.
func (s *PostArchive) InsertPosts(ctx context.Context, posts []*domain.Post) (int, error) {
	start := time.Now()
	query := `
		INSERT INTO posts (
			id, source, platform, title, content, author, ts, post_age,
			upvotes, comment_count, award_count, comments, link, post_type, token_symbol
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source, link) DO NOTHING
	`

	inserted := 0
	for _, p := range posts {
		comments := p.Comments
		if comments == nil {
			comments = []string{}
		}
		tag, err := s.pool.Exec(ctx, query,
			p.ID,
			p.Source,
			p.Platform,
			p.Title,
			p.Content,
			p.Author,
			p.Timestamp,
			p.PostAge,
			p.Upvotes,
			p.CommentCount,
			p.AwardCount,
			comments,
			p.Link,
			p.PostType,
			p.TokenSymbol,
		)
		if err != nil {
			observability.RecordDBQuery("postgres", "insert_posts", time.Since(start).Seconds(), err)
			return inserted, fmt.Errorf("insert post %d: %w", p.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	observability.RecordDBQuery("postgres", "insert_posts", time.Since(start).Seconds(), nil)
	return inserted, nil
}

// GetBySource retrieves archived posts for one source tag.
func (s *PostArchive) GetBySource(ctx context.Context, source string) ([]*domain.Post, error) {
	start := time.Now()
	query := `
		SELECT id, source, platform, title, content, author, ts, post_age,
		       upvotes, comment_count, award_count, comments, link, post_type, token_symbol
		FROM posts
		WHERE source = $1
		ORDER BY ts ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, source)
	observability.RecordDBQuery("postgres", "get_by_source", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get posts by source: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// CountPosts returns the total number of archived posts.
func (s *PostArchive) CountPosts(ctx context.Context) (int64, error) {
	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	observability.RecordDBQuery("postgres", "count_posts", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func scanPosts(rows pgx.Rows) ([]*domain.Post, error) {
	var posts []*domain.Post
	for rows.Next() {
		var p domain.Post
		err := rows.Scan(
			&p.ID,
			&p.Source,
			&p.Platform,
			&p.Title,
			&p.Content,
			&p.Author,
			&p.Timestamp,
			&p.PostAge,
			&p.Upvotes,
			&p.CommentCount,
			&p.AwardCount,
			&p.Comments,
			&p.Link,
			&p.PostType,
			&p.TokenSymbol,
		)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
