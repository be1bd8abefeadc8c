package evaluateeligibility

import "time"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID         string    `json:"applicationId"`
	MatchedLenderIDs      []string  `json:"matchedLenderIds"`
	MatchedCount          int       `json:"matchedCount"`
	UnmatchedCount        int       `json:"unmatchedCount"`
	TotalLendersEvaluated int       `json:"totalLendersEvaluated"`
	TopLenderID           string    `json:"topLenderId,omitempty"`
	TopLenderName         string    `json:"topLenderName,omitempty"`
	TopConfidence         float64   `json:"topConfidence"`
	HasMatches            bool      `json:"hasMatches"`
	AnalyzedAt            time.Time `json:"analyzedAt"`
}
