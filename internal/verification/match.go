package verification

import (
	"math"
	"strings"

	"agri-storefront/internal/feed"
)

// AmountMatches compares amounts after rounding to whole currency units
func AmountMatches(amount float64, expected int64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return math.Round(amount) == float64(expected)
}

// DescriptionMatches reports whether token occurs in description, ignoring case.
// An empty token matches everything.
func DescriptionMatches(description, token string) bool {
	if token == "" {
		return true
	}
	return strings.Contains(strings.ToLower(description), strings.ToLower(token))
}

// Match looks for a record paying expected with token in its description.
// The feed lists the newest transaction last, so the batch is scanned from
// the end; a newer unrelated transfer does not hide an older match.
func Match(records []feed.Record, expected int64, token string) (feed.Record, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if AmountMatches(r.Amount, expected) && DescriptionMatches(r.Description, token) {
			return r, true
		}
	}
	return feed.Record{}, false
}
