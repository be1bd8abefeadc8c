// Package eligibility matches one loan application against many lenders by
// fanning out one oracle judgment per lender and ranking the results.
package eligibility

import (
	"time"

	"lender-matching/internal/models"
)

// MatchThreshold partitions judgments into matched and unmatched.
const MatchThreshold = 0.5

// Lender is the unit the coordinator fans out over.
type Lender struct {
	ID       string
	Name     string
	Criteria []models.Criterion
}

// FromModel flattens a stored lender and its ordered criteria.
func FromModel(l models.LenderWithCriteria) Lender {
	return Lender{ID: l.ID, Name: l.Name, Criteria: l.Criteria}
}

// EvaluationRequest is built fresh for each lender and never mutated.
type EvaluationRequest struct {
	Application *models.ApplicationSnapshot
	LenderID    string
	LenderName  string
	Criteria    []models.Criterion
}

// CriteriaJudgment is one criterion verdict. The values keep the JSON type
// the oracle produced (number, string, bool, list or null).
type CriteriaJudgment struct {
	CriteriaKey   string      `json:"criteria_key"`
	DisplayName   string      `json:"display_name"`
	RequiredValue interface{} `json:"required_value"`
	ActualValue   interface{} `json:"actual_value"`
	Met           bool        `json:"met"`
	Reasoning     string      `json:"reasoning"`
}

type LenderJudgment struct {
	LenderID               string             `json:"lender_id"`
	LenderName             string             `json:"lender_name"`
	ConfidenceScore        float64            `json:"confidence_score"`
	OverallReasoning       string             `json:"overall_reasoning"`
	CriteriaEvaluations    []CriteriaJudgment `json:"criteria_evaluations"`
	ImprovementSuggestions []string           `json:"improvement_suggestions"`
}

// IsMatch reports whether the judgment lands in the matched partition.
func (j LenderJudgment) IsMatch() bool {
	return j.ConfidenceScore >= MatchThreshold
}

// Outcome is the result of one lender evaluation: exactly one of Judgment
// and Err is set.
type Outcome struct {
	Index      int
	LenderID   string
	LenderName string
	Judgment   *LenderJudgment
	Err        error
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.Judgment != nil
}

type EligibilityReport struct {
	ApplicationID         string           `json:"application_id"`
	MatchedLenders        []LenderJudgment `json:"matched_lenders"`
	UnmatchedLenders      []LenderJudgment `json:"unmatched_lenders"`
	AnalysisTimestamp     time.Time        `json:"analysis_timestamp"`
	TotalLendersEvaluated int              `json:"total_lenders_evaluated"`
}

// MatchedLenderIDs returns the matched lender ids in rank order.
func (r *EligibilityReport) MatchedLenderIDs() []string {
	ids := make([]string, len(r.MatchedLenders))
	for i, j := range r.MatchedLenders {
		ids[i] = j.LenderID
	}
	return ids
}

// JudgmentPayload is the oracle's self-reported judgment before the
// confidence correction. Nil pointers mean the field was absent.
type JudgmentPayload struct {
	OverallMatch           *bool                     `json:"overall_match"`
	ConfidenceScore        *float64                  `json:"confidence_score"`
	OverallReasoning       string                    `json:"overall_reasoning"`
	CriteriaEvaluations    []CriteriaJudgmentPayload `json:"criteria_evaluations"`
	ImprovementSuggestions []string                  `json:"improvement_suggestions"`
}

// CriteriaJudgmentPayload accepts any JSON scalar for the two value fields.
type CriteriaJudgmentPayload struct {
	CriteriaKey   string      `json:"criteria_key"`
	DisplayName   string      `json:"display_name"`
	RequiredValue interface{} `json:"required_value"`
	ActualValue   interface{} `json:"actual_value"`
	Met           bool        `json:"met"`
	Reasoning     string      `json:"reasoning"`
}
