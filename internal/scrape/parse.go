package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var agePattern = regexp.MustCompile(`(\d+)\s*(min|hr|hour|day|wk|week|mo|month|yr|year|sec)`)

// parseCount converts reddit-style counters ("1.2k", "3M", "417") to ints.
// Unparseable input yields 0.
func parseCount(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "+")
	if s == "" || s == "•" || s == "vote" || s == "comment" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n * mult)
}

// approxAge converts a human-readable age ("3 days ago", "2 hr. ago") to an
// approximate duration. Months count as 30 days and years as 365. The second
// return value is false when the string carries no recognizable unit.
func approxAge(postAge string) (time.Duration, bool) {
	m := agePattern.FindStringSubmatch(strings.ToLower(postAge))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	var unit time.Duration
	switch m[2] {
	case "sec":
		unit = time.Second
	case "min":
		unit = time.Minute
	case "hr", "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "wk", "week":
		unit = 7 * 24 * time.Hour
	case "mo", "month":
		unit = 30 * 24 * time.Hour
	case "yr", "year":
		unit = 365 * 24 * time.Hour
	}
	return time.Duration(n) * unit, true
}

// parseTimestamp decodes the created-timestamp attribute reddit renders.
// Falls back to now minus the approximate age when the attribute is absent.
func parseTimestamp(raw, postAge string, now time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	if age, ok := approxAge(postAge); ok {
		return now.Add(-age).UTC()
	}
	return now.UTC()
}

// Conversion helpers for script evaluation results, which decode as
// map[string]any / []any / float64.

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func fieldString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func fieldCount(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return int(v)
	case string:
		return parseCount(v)
	default:
		return 0
	}
}
