package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/observability"
)

const redditBaseURL = "https://www.reddit.com"

// listingScript pulls candidate posts out of a subreddit listing page.
// Reddit renders posts as shreddit-post custom elements whose attributes
// carry the metadata we need.
const listingScript = `(() => {
  const posts = [];
  document.querySelectorAll('shreddit-post').forEach(p => {
    const ageEl = p.querySelector('faceplate-timeago time');
    const bodyEl = p.querySelector('[slot="text-body"]');
    posts.push({
      title: p.getAttribute('post-title') || '',
      link: p.getAttribute('permalink') || '',
      author: p.getAttribute('author') || '',
      upvotes: p.getAttribute('score') || '0',
      comment_count: p.getAttribute('comment-count') || '0',
      timestamp: p.getAttribute('created-timestamp') || '',
      post_type: p.getAttribute('post-type') || '',
      post_age: ageEl ? ageEl.textContent : '',
      content: bodyEl ? bodyEl.textContent : ''
    });
  });
  return posts;
})()`

// commentsScript pulls top-level comment texts out of a post page.
const commentsScript = `(() => {
  const out = [];
  document.querySelectorAll('shreddit-comment [slot="comment"] p').forEach(el => {
    const t = (el.textContent || '').trim();
    if (t) out.push(t);
  });
  return out;
})()`

const scrollScript = `window.scrollTo(0, document.body.scrollHeight); true`

// RedditWorker scrapes one subreddit through a PageFetcher.
type RedditWorker struct {
	limits Limits
	logger *log.Logger
}

// NewRedditWorker creates a worker with the given limits.
func NewRedditWorker(limits Limits, logger *log.Logger) *RedditWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &RedditWorker{limits: limits, logger: logger}
}

var _ SourceWorker = (*RedditWorker)(nil)

// Scrape walks the subreddit's /new listing page by page, admitting unseen
// posts through the intake. It returns once the page limit is hit, every
// visible post is older than the cutoff, or the context expires.
func (w *RedditWorker) Scrape(ctx context.Context, f PageFetcher, src Source, in *Intake) error {
	listingURL := redditBaseURL + "/r/" + src.Name + "/new/"
	if err := w.navigate(ctx, f, listingURL); err != nil {
		return fmt.Errorf("open listing: %w", err)
	}

	for page := 0; page < w.limits.MaxPagesPerSource; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raws, err := w.extractListing(ctx, f)
		if err != nil {
			return fmt.Errorf("extract listing page %d: %w", page, err)
		}
		if len(raws) == 0 {
			break
		}

		anyFresh := false
		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				return err
			}

			post, fresh := w.buildPost(raw, src, in)
			if fresh {
				anyFresh = true
			}
			if post == nil {
				continue
			}

			if post.CommentCount > 0 && w.limits.CommentsPerPost > 0 {
				if err := w.collectComments(ctx, f, post, listingURL); err != nil {
					w.logger.Printf("[scrape] %s: comments for %s: %v", src.Tag, post.Link, err)
				}
			}
			in.Commit(ctx, post)
		}

		// Every visible post is past the cutoff; deeper pages are older still.
		if !anyFresh {
			break
		}

		if err := w.scroll(ctx, f); err != nil {
			return fmt.Errorf("scroll listing: %w", err)
		}
	}
	return nil
}

// buildPost converts a raw listing record into a Post with an assigned id.
// Returns (nil, fresh) for posts that are too old or already seen.
func (w *RedditWorker) buildPost(raw map[string]any, src Source, in *Intake) (*domain.Post, bool) {
	link := fieldString(raw, "link")
	title := fieldString(raw, "title")
	if link == "" || title == "" {
		return nil, false
	}
	if strings.HasPrefix(link, "/") {
		link = redditBaseURL + link
	}

	postAge := fieldString(raw, "post_age")
	if age, ok := approxAge(postAge); ok && age > in.CutoffAge() {
		return nil, false
	}

	key := domain.PostKey{Source: src.Tag, Link: link}
	id, ok := in.Admit(key)
	if !ok {
		return nil, true
	}

	now := time.Now()
	return &domain.Post{
		ID:           id,
		Source:       src.Tag,
		Platform:     src.Platform,
		Title:        title,
		Content:      fieldString(raw, "content"),
		Author:       fieldString(raw, "author"),
		Timestamp:    parseTimestamp(fieldString(raw, "timestamp"), postAge, now),
		PostAge:      postAge,
		Upvotes:      fieldCount(raw, "upvotes"),
		CommentCount: fieldCount(raw, "comment_count"),
		Comments:     []string{},
		Link:         link,
		PostType:     fieldString(raw, "post_type"),
	}, true
}

func (w *RedditWorker) extractListing(ctx context.Context, f PageFetcher) ([]map[string]any, error) {
	var result any
	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		var err error
		result, err = f.Evaluate(ctx, listingScript)
		return err
	})
	if err != nil {
		return nil, err
	}

	items := asSlice(result)
	raws := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m := asMap(item); m != nil {
			raws = append(raws, m)
		}
	}
	return raws, nil
}

// collectComments opens the post page, pulls up to CommentsPerPost comment
// texts, and returns to the listing. The post keeps an empty comment list
// when extraction fails.
func (w *RedditWorker) collectComments(ctx context.Context, f PageFetcher, post *domain.Post, listingURL string) error {
	if err := w.navigate(ctx, f, post.Link); err != nil {
		return err
	}
	defer func() {
		if err := w.navigate(ctx, f, listingURL); err != nil {
			w.logger.Printf("[scrape] %s: return to listing: %v", post.Source, err)
		}
	}()

	result, err := f.Evaluate(ctx, commentsScript)
	if err != nil {
		return err
	}

	for _, item := range asSlice(result) {
		text, ok := item.(string)
		if !ok || text == "" {
			continue
		}
		post.Comments = append(post.Comments, text)
		if len(post.Comments) >= w.limits.CommentsPerPost {
			break
		}
	}
	observability.RecordCommentsCollected(len(post.Comments))
	return nil
}

func (w *RedditWorker) scroll(ctx context.Context, f PageFetcher) error {
	for i := 0; i < w.limits.ScrollsPerPage; i++ {
		if _, err := f.Evaluate(ctx, scrollScript); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1500 * time.Millisecond):
		}
	}
	return nil
}

func (w *RedditWorker) navigate(ctx context.Context, f PageFetcher, url string) error {
	return backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		return f.Navigate(ctx, url)
	})
}
