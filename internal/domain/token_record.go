package domain

// Recommendation classifies a token by confidence.
type Recommendation string

const (
	RecommendationBuy  Recommendation = "BUY"
	RecommendationHold Recommendation = "HOLD"
	RecommendationSell Recommendation = "SELL"
)

// RecommendationFor maps a confidence score to a recommendation.
// BUY at confidence >= 75, HOLD at >= 55, SELL otherwise.
func RecommendationFor(confidence int) Recommendation {
	switch {
	case confidence >= 75:
		return RecommendationBuy
	case confidence >= 55:
		return RecommendationHold
	default:
		return RecommendationSell
	}
}

// TokenRecord aggregates all posts mentioning one token symbol.
// Corresponds to one element of sentiment.json.
type TokenRecord struct {
	Symbol             string         `json:"symbol"`
	Posts              []*Post        `json:"posts"`
	RawSentiment       float64        `json:"raw_sentiment_score"`       // [0,1], 4 decimals
	AggregateSentiment float64        `json:"aggregate_sentiment_score"` // [0,1], 4 decimals
	Engagement         float64        `json:"engagement_score"`          // [0,1], 4 decimals
	Confidence         int            `json:"confidence"`                // 0..100
	Recommendation     Recommendation `json:"recommendation"`
}

// LatestPost returns the post with the newest timestamp, or nil for an empty record.
func (r *TokenRecord) LatestPost() *Post {
	var latest *Post
	for _, p := range r.Posts {
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	return latest
}
