package domain

import "time"

// Post is a single scraped social-media item.
// Corresponds to one element of scraped_posts.json.
type Post struct {
	ID           int64     `json:"id"`                 // process-wide monotonic
	Source       string    `json:"source"`             // e.g. "r/pumpfun"
	Platform     string    `json:"platform"`           // "reddit", "twitter", ...
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	PostAge      string    `json:"post_age"`           // human readable ("2 hours ago")
	Upvotes      int       `json:"upvotes_likes"`
	CommentCount int       `json:"comment_count"`
	AwardCount   int       `json:"award_count,omitempty"` // retweets on twitter
	Comments     []string  `json:"comments"`
	Link         string    `json:"link"`               // unique within source
	PostType     string    `json:"post_type,omitempty"`
	TokenSymbol  string    `json:"token_name,omitempty"` // uppercase ticker, filled asynchronously
}

// Key returns the dedup key. (source, link) is unique within the post store.
func (p *Post) Key() PostKey {
	return PostKey{Source: p.Source, Link: p.Link}
}

// PostKey identifies a post across scraping runs.
type PostKey struct {
	Source string
	Link   string
}
