package eligibility

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"lender-matching/internal/common/validation"
)

const fence = "```"

// judgmentSchema is the shape an evaluation payload must have. Fields the
// oracle may leave out are optional here and defaulted in Resolve.
var judgmentSchema = validation.MustCompile("judgment", map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"overall_match":     map[string]interface{}{"type": []interface{}{"boolean", "null"}},
		"confidence_score":  map[string]interface{}{"type": []interface{}{"number", "null"}},
		"overall_reasoning": map[string]interface{}{"type": []interface{}{"string", "null"}},
		"criteria_evaluations": map[string]interface{}{
			"type": []interface{}{"array", "null"},
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"criteria_key": map[string]interface{}{"type": []interface{}{"string", "null"}},
					"display_name": map[string]interface{}{"type": []interface{}{"string", "null"}},
					"met":          map[string]interface{}{"type": []interface{}{"boolean", "null"}},
					"reasoning":    map[string]interface{}{"type": []interface{}{"string", "null"}},
				},
			},
		},
		"improvement_suggestions": map[string]interface{}{
			"type":  []interface{}{"array", "null"},
			"items": map[string]interface{}{"type": "string"},
		},
	},
})

// StripFences removes a markdown code fence wrapped around generated text.
// A first line of ``` followed by a language tag is dropped whole. A tag
// that runs straight into the payload (```json{...}) loses just the tag,
// and a bare leading ``` loses just those three characters.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, fence) {
		after := text[len(fence):]
		firstLine, rest := after, ""
		if nl := strings.IndexByte(after, '\n'); nl >= 0 {
			firstLine, rest = after[:nl], after[nl+1:]
		}
		if isLanguageTag(strings.TrimSpace(firstLine)) {
			text = rest
		} else {
			text = after[inlineTagLen(after):]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

// inlineTagLen is the length of a language tag at the start of s when it is
// followed by whitespace or the opening of a JSON document, else 0.
func inlineTagLen(s string) int {
	n := 0
	for n < len(s) && isTagByte(s[n]) {
		n++
	}
	if n == 0 || n == len(s) {
		return 0
	}
	switch s[n] {
	case ' ', '\t', '\r', '{', '[':
		return n
	}
	return 0
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

func isLanguageTag(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTagByte(s[i]) {
			return false
		}
	}
	return true
}

// Normalize turns raw evaluation text into a judgment payload.
func Normalize(raw string) (*JudgmentPayload, error) {
	payload, _, err := normalize(raw)
	return payload, err
}

func normalize(raw string) (*JudgmentPayload, bool, error) {
	var payload JudgmentPayload
	repaired, err := decodeOracleJSON(raw, judgmentSchema, &payload)
	if err != nil {
		return nil, repaired, err
	}
	return &payload, repaired, nil
}

// DecodeOracleJSON strips fences, parses the text (repairing it once if the
// strict parse fails), checks it against schema when one is given, and
// decodes it into v. Every failure is a *MalformedResponseError.
func DecodeOracleJSON(raw string, schema *validation.Schema, v interface{}) error {
	_, err := decodeOracleJSON(raw, schema, v)
	return err
}

func decodeOracleJSON(raw string, schema *validation.Schema, v interface{}) (bool, error) {
	text := []byte(StripFences(raw))
	repaired := false

	var doc interface{}
	if err := json.Unmarshal(text, &doc); err != nil {
		repaired = true
		text = []byte(RepairJSON(string(text)))
		if err := json.Unmarshal(text, &doc); err != nil {
			return repaired, newMalformed(raw, fmt.Errorf("parse after repair: %w", err))
		}
	}

	if schema != nil {
		if err := schema.Validate(doc).Err(schema.Name()); err != nil {
			return repaired, newMalformed(raw, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	if err := dec.Decode(v); err != nil {
		return repaired, newMalformed(raw, fmt.Errorf("decode: %w", err))
	}
	return repaired, nil
}

// Resolve applies payload defaults and the confidence correction.
func (p *JudgmentPayload) Resolve(lenderID, lenderName string) LenderJudgment {
	overall := false
	if p.OverallMatch != nil {
		overall = *p.OverallMatch
	}
	confidence := MatchThreshold
	if p.ConfidenceScore != nil {
		confidence = clamp01(*p.ConfidenceScore)
	}

	criteria := make([]CriteriaJudgment, 0, len(p.CriteriaEvaluations))
	for _, c := range p.CriteriaEvaluations {
		criteria = append(criteria, CriteriaJudgment{
			CriteriaKey:   c.CriteriaKey,
			DisplayName:   c.DisplayName,
			RequiredValue: c.RequiredValue,
			ActualValue:   c.ActualValue,
			Met:           c.Met,
			Reasoning:     c.Reasoning,
		})
	}

	suggestions := p.ImprovementSuggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	return LenderJudgment{
		LenderID:               lenderID,
		LenderName:             lenderName,
		ConfidenceScore:        CorrectConfidence(overall, confidence),
		OverallReasoning:       p.OverallReasoning,
		CriteriaEvaluations:    criteria,
		ImprovementSuggestions: suggestions,
	}
}

// CorrectConfidence makes the confidence agree with the boolean verdict:
// a non-match never scores at or above the threshold and a match never
// scores below it.
func CorrectConfidence(overallMatch bool, confidence float64) float64 {
	switch {
	case !overallMatch && confidence >= MatchThreshold:
		return 0.4
	case overallMatch && confidence < MatchThreshold:
		return 0.6
	default:
		return confidence
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
