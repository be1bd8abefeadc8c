package eligibility

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-matching/internal/common/validation"
)

const samplePayload = `{
  "overall_match": true,
  "confidence_score": 0.82,
  "overall_reasoning": "Strong credit and time in business.",
  "criteria_evaluations": [
    {"criteria_key": "min_fico_score", "display_name": "Minimum FICO", "required_value": 680, "actual_value": 720, "met": true, "reasoning": "720 >= 680"},
    {"criteria_key": "excluded_states", "display_name": "Excluded States", "required_value": ["CA", "NV"], "actual_value": "TX", "met": true}
  ],
  "improvement_suggestions": ["Increase down payment"]
}`

// ==========================
// Fence Stripping
// ==========================

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"other tag", "```JSON5\n{\"a\":1}```", `{"a":1}`},
		{"bare fence with newline", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence inline", "```{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
		{"only trailing fence", "{\"a\":1}\n```", `{"a":1}`},
		{"tag glued to object", "```json{\"a\":1}```", `{"a":1}`},
		{"tag then space on one line", "```json {\"a\":1}```", `{"a":1}`},
		{"tag glued to array", "```json[1,2]```", `[1,2]`},
		{"bare fence keeps literal", "```true```", `true`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}

func TestNormalize_FenceIdempotence(t *testing.T) {
	plain, err := Normalize(samplePayload)
	require.NoError(t, err)

	for _, wrapped := range []string{
		"```json\n" + samplePayload + "\n```",
		"```\n" + samplePayload + "\n```",
		"\n\n```json\n" + samplePayload + "```\n",
		"```json" + samplePayload + "```",
		"```json " + samplePayload + " ```",
	} {
		got, err := Normalize(wrapped)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

// ==========================
// Parsing And Repair
// ==========================

func TestNormalize_Success(t *testing.T) {
	p, err := Normalize(samplePayload)
	require.NoError(t, err)

	require.NotNil(t, p.OverallMatch)
	assert.True(t, *p.OverallMatch)
	require.NotNil(t, p.ConfidenceScore)
	assert.Equal(t, 0.82, *p.ConfidenceScore)
	require.Len(t, p.CriteriaEvaluations, 2)
	assert.Equal(t, "min_fico_score", p.CriteriaEvaluations[0].CriteriaKey)
	assert.Equal(t, []string{"Increase down payment"}, p.ImprovementSuggestions)
}

func TestNormalize_RepairsOnce(t *testing.T) {
	raw := "```json\n{\"overall_match\": False, \"confidence_score\": 0.3, \"overall_reasoning\": \"FICO too low\nfor this lender\",}\n```"

	p, repaired, err := normalize(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.False(t, *p.OverallMatch)
	assert.Equal(t, "FICO too low\nfor this lender", p.OverallReasoning)
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "Sorry, I cannot help with that."},
		{"empty", ""},
		{"array at top level", `[{"overall_match": true}]`},
		{"wrong field type", `{"overall_match": "yes", "confidence_score": 0.9}`},
		{"confidence as string", `{"overall_match": true, "confidence_score": "high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Normalize(tt.raw)
			assert.Nil(t, p)

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.raw, malformed.Raw)
		})
	}
}

func TestNormalize_MalformedRawIsTruncated(t *testing.T) {
	raw := "not json " + strings.Repeat("x", 2000)

	_, err := Normalize(raw)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Len(t, malformed.Raw, maxRawDiagnostic)
	assert.True(t, strings.HasPrefix(raw, malformed.Raw))
}

func TestDecodeOracleJSON_WithCustomSchema(t *testing.T) {
	schema := validation.MustCompile("lender", map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, DecodeOracleJSON("```json\n{\"name\": \"Acme\",}\n```", schema, &out))
	assert.Equal(t, "Acme", out.Name)

	err := DecodeOracleJSON(`{"title": "Acme"}`, schema, &out)
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, err.Error(), "lender validation failed")
}

// ==========================
// Resolve And Correction
// ==========================

func TestCorrectConfidence(t *testing.T) {
	tests := []struct {
		match      bool
		confidence float64
		want       float64
	}{
		{false, 0.9, 0.4},
		{false, 0.5, 0.4},
		{true, 0.1, 0.6},
		{true, 0.49, 0.6},
		{true, 0.8, 0.8},
		{true, 0.5, 0.5},
		{false, 0.2, 0.2},
		{false, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CorrectConfidence(tt.match, tt.confidence), "match=%v confidence=%v", tt.match, tt.confidence)
	}
}

func TestResolve_Defaults(t *testing.T) {
	p, err := Normalize(`{"overall_reasoning": "thin file"}`)
	require.NoError(t, err)

	j := p.Resolve("l-1", "Lender One")

	// missing overall_match is false and the 0.5 default is corrected down
	assert.Equal(t, 0.4, j.ConfidenceScore)
	assert.False(t, j.IsMatch())
	assert.Equal(t, "l-1", j.LenderID)
	assert.Equal(t, "Lender One", j.LenderName)
	assert.NotNil(t, j.CriteriaEvaluations)
	assert.Empty(t, j.CriteriaEvaluations)
	assert.NotNil(t, j.ImprovementSuggestions)
	assert.Empty(t, j.ImprovementSuggestions)
}

func TestResolve_ClampsOutOfRange(t *testing.T) {
	p, err := Normalize(`{"overall_match": true, "confidence_score": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Resolve("l", "L").ConfidenceScore)

	p, err = Normalize(`{"overall_match": false, "confidence_score": -3}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Resolve("l", "L").ConfidenceScore)
}

func TestResolve_KeepsCriterionValueTypes(t *testing.T) {
	p, err := Normalize(samplePayload)
	require.NoError(t, err)

	j := p.Resolve("l", "L")
	require.Len(t, j.CriteriaEvaluations, 2)
	assert.Equal(t, 680.0, j.CriteriaEvaluations[0].RequiredValue)
	assert.Equal(t, 720.0, j.CriteriaEvaluations[0].ActualValue)
	assert.Equal(t, []interface{}{"CA", "NV"}, j.CriteriaEvaluations[1].RequiredValue)
	assert.Equal(t, "", j.CriteriaEvaluations[1].Reasoning)

	encoded, err := json.Marshal(j.CriteriaEvaluations[0])
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"required_value":680`)
	assert.Contains(t, string(encoded), `"actual_value":720`)
}
