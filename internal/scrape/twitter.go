package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"memecoin-radar/internal/backoff"
	"memecoin-radar/internal/domain"
)

const twitterBaseURL = "https://twitter.com"

// tweetsScript pulls tweets out of a hashtag search page. Tweets render as
// article elements; engagement counts live in button aria-labels.
const tweetsScript = `(() => {
  const tweets = [];
  document.querySelectorAll('article[data-testid="tweet"]').forEach(el => {
    const textEl = el.querySelector('[data-testid="tweetText"]');
    const authorEl = el.querySelector('a[href*="/"]');
    const timeEl = el.querySelector('time');
    const linkEl = el.querySelector('a[href*="/status/"]');
    const count = sel => {
      const btn = el.querySelector(sel);
      const m = btn ? (btn.getAttribute('aria-label') || '').match(/\d+/) : null;
      return m ? m[0] : '0';
    };
    let postType = 'text';
    if (el.querySelector('img')) postType = 'image';
    if (el.querySelector('video')) postType = 'video';
    tweets.push({
      content: textEl ? textEl.textContent.trim() : '',
      author: authorEl ? (authorEl.getAttribute('href') || '').replace('/', '') : '',
      timestamp: timeEl ? timeEl.getAttribute('datetime') || '' : '',
      post_age: timeEl ? timeEl.getAttribute('title') || '' : '',
      likes: count('[data-testid="like"]'),
      replies: count('[data-testid="reply"]'),
      retweets: count('[data-testid="retweet"]'),
      link: linkEl ? linkEl.getAttribute('href') || '' : '',
      post_type: postType
    });
  });
  return tweets;
})()`

// TwitterWorker scrapes one hashtag's live search feed. Twitter paginates
// by infinite scroll, so each round is one extraction followed by a
// scroll; MaxPagesPerSource bounds the rounds.
type TwitterWorker struct {
	limits Limits
	logger *log.Logger
}

// NewTwitterWorker creates a worker with the given limits.
func NewTwitterWorker(limits Limits, logger *log.Logger) *TwitterWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &TwitterWorker{limits: limits, logger: logger}
}

var _ SourceWorker = (*TwitterWorker)(nil)

// Scrape opens the hashtag's latest-tweets search and walks scroll rounds
// until a round admits nothing new, the round limit is hit, or the
// context expires.
func (w *TwitterWorker) Scrape(ctx context.Context, f PageFetcher, src Source, in *Intake) error {
	searchURL := twitterBaseURL + "/search?q=%23" + src.Name + "&src=hashtag_click&f=live"
	if err := w.navigate(ctx, f, searchURL); err != nil {
		return fmt.Errorf("open search: %w", err)
	}

	for round := 0; round < w.limits.MaxPagesPerSource; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raws, err := w.extractTweets(ctx, f)
		if err != nil {
			return fmt.Errorf("extract tweets round %d: %w", round, err)
		}

		admitted := 0
		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				return err
			}
			post := w.buildTweet(raw, src, in)
			if post == nil {
				continue
			}
			admitted++
			in.Commit(ctx, post)
		}
		// A round that admits nothing means the feed has been drained.
		if admitted == 0 {
			break
		}

		if err := w.scroll(ctx, f); err != nil {
			return fmt.Errorf("scroll feed: %w", err)
		}
	}
	return nil
}

// buildTweet converts a raw tweet record into a Post with an assigned id.
// Tweets have no title; the cashtag fast path reads the content instead.
// Returns nil for tweets that are incomplete, too old, or already seen.
func (w *TwitterWorker) buildTweet(raw map[string]any, src Source, in *Intake) *domain.Post {
	content := fieldString(raw, "content")
	link := fieldString(raw, "link")
	if content == "" || link == "" {
		return nil
	}
	if strings.HasPrefix(link, "/") {
		link = twitterBaseURL + link
	}

	now := time.Now()
	ts := parseTimestamp(fieldString(raw, "timestamp"), "", now)
	if now.Sub(ts) > in.CutoffAge() {
		return nil
	}

	id, ok := in.Admit(domain.PostKey{Source: src.Tag, Link: link})
	if !ok {
		return nil
	}

	return &domain.Post{
		ID:           id,
		Source:       src.Tag,
		Platform:     src.Platform,
		Content:      content,
		Author:       fieldString(raw, "author"),
		Timestamp:    ts,
		PostAge:      fieldString(raw, "post_age"),
		Upvotes:      fieldCount(raw, "likes"),
		CommentCount: fieldCount(raw, "replies"),
		AwardCount:   fieldCount(raw, "retweets"),
		Comments:     []string{},
		Link:         link,
		PostType:     fieldString(raw, "post_type"),
	}
}

func (w *TwitterWorker) extractTweets(ctx context.Context, f PageFetcher) ([]map[string]any, error) {
	var result any
	err := backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		var err error
		result, err = f.Evaluate(ctx, tweetsScript)
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

func (w *TwitterWorker) scroll(ctx context.Context, f PageFetcher) error {
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

func (w *TwitterWorker) navigate(ctx context.Context, f PageFetcher, url string) error {
	return backoff.Do(ctx, backoff.Default(), func(ctx context.Context) error {
		return f.Navigate(ctx, url)
	})
}
