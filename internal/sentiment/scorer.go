package sentiment

import (
	"math"
	"strings"
)

// Scorer rates a text in [-1, 1]. Implementations must be pure: the same
// text always yields the same score.
type Scorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string) float64

// Score calls f.
func (f ScorerFunc) Score(text string) float64 {
	return f(text)
}

// lexicon maps sentiment-bearing terms to valences. Crypto slang included;
// general english kept minimal.
var lexicon = map[string]float64{
	// bullish slang
	"moon": 0.8, "mooning": 0.8, "moonshot": 0.7, "pump": 0.6, "pumping": 0.6,
	"bullish": 0.7, "gem": 0.6, "hodl": 0.4, "ath": 0.5, "lfg": 0.6,
	"rocket": 0.6, "lambo": 0.5, "breakout": 0.5, "undervalued": 0.5,
	"gains": 0.5, "winner": 0.5, "solid": 0.4, "legit": 0.4,

	// bearish slang
	"rug": -0.9, "rugged": -0.9, "rugpull": -0.9, "scam": -0.9, "scammer": -0.9,
	"dump": -0.7, "dumping": -0.7, "bearish": -0.7, "rekt": -0.8, "ponzi": -0.8,
	"crash": -0.7, "crashing": -0.7, "dead": -0.6, "overvalued": -0.5,
	"honeypot": -0.9, "exit": -0.4, "losses": -0.5, "bagholder": -0.5,

	// general
	"good": 0.4, "great": 0.6, "amazing": 0.7, "love": 0.6, "best": 0.6,
	"buy": 0.3, "bought": 0.3, "huge": 0.4, "win": 0.5, "profit": 0.5,
	"bad": -0.4, "terrible": -0.7, "awful": -0.7, "hate": -0.6, "worst": -0.6,
	"sell": -0.3, "sold": -0.3, "avoid": -0.5, "lost": -0.4, "loss": -0.4,
	"fake": -0.6, "sketchy": -0.5,
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "dont": {}, "don't": {},
	"isnt": {}, "isn't": {}, "wont": {}, "won't": {}, "cant": {}, "can't": {},
}

// DefaultScorer is a lexicon scorer tuned for crypto social-media posts.
// A negation word flips the valence of the term that follows it. The sum
// is squashed through tanh so long rants saturate instead of overflowing.
func DefaultScorer() Scorer {
	return ScorerFunc(func(text string) float64 {
		words := tokenize(text)
		var sum float64
		negate := false
		for _, w := range words {
			if _, ok := negations[w]; ok {
				negate = true
				continue
			}
			if v, ok := lexicon[w]; ok {
				if negate {
					v = -v
				}
				sum += v
			}
			negate = false
		}
		return math.Tanh(sum / 2)
	})
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'' {
			return false
		}
		return true
	})
}
