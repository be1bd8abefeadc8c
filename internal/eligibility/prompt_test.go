package eligibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"lender-matching/internal/models"
)

func TestBuildEvaluationPrompt(t *testing.T) {
	lender := createTestLender("A")
	req := EvaluationRequest{
		Application: createTestApplication(),
		LenderID:    lender.ID,
		LenderName:  lender.Name,
		Criteria:    lender.Criteria,
	}

	prompt := BuildEvaluationPrompt(req)

	for _, want := range []string{
		"- Name: Acme Hauling LLC\n",
		"- Annual revenue: $1,250,000.00\n",
		"- FICO score: 712\n",
		"- PayNet score: 655\n",
		"- Bankruptcy: No\n",
		"- Requested amount: $150,000.00\n",
		"- Down payment percent: 10.0%\n",
		"- Term: 60 months\n",
		"- Mileage: 240,000\n",
		"- State: TX\n",
		"LENDER: Lender A\n",
		"- Minimum FICO (min_fico_score): 680 [Type: number, Required: true, Category: credit]\n",
		`- Excluded States (excluded_states): ["CA","NV"] [Type: array, Required: true, Category: general]`,
		`"improvement_suggestions"`,
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "Notes:")

	assert.Equal(t, prompt, BuildEvaluationPrompt(req), "prompt must be deterministic")
}

func TestBuildEvaluationPrompt_EvaluationRules(t *testing.T) {
	lender := createTestLender("A")
	prompt := BuildEvaluationPrompt(EvaluationRequest{
		Application: createTestApplication(),
		LenderID:    lender.ID,
		LenderName:  lender.Name,
		Criteria:    lender.Criteria,
	})

	for _, want := range []string{
		"required and optional",
		"Minimum values (min_fico_score, min_years_in_business, ...): the application value must be\n   greater than or equal to the required value.",
		"Maximum values (max_loan_amount, max_equipment_age, ...): the application value must be less\n   than or equal to the required value.",
		"Boolean flags (allows_bankruptcy, allows_judgments, ...): the criterion fails only when the\n   application conflicts with the flag.",
		"Lists (excluded_industries, excluded_states, ...): the application value must NOT be in the list.",
		"Credit ratings (A, B, C, D, E): map the FICO score onto the lender's tiers.",
		"be lenient and note it",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "treat it as unmet")
	assert.Less(t, strings.Index(prompt, "RULES"), strings.Index(prompt, "Reply with JSON only"))
}

func TestBuildEvaluationPrompt_MissingValues(t *testing.T) {
	app := &models.ApplicationSnapshot{
		CreditInfo:  models.CreditInfo{FICOScore: 590, HasBankruptcy: true, BankruptcyDischargeDate: ptr("2021-06-01")},
		LoanDetails: models.LoanDetails{RequestedAmount: 0, DownPayment: 5000},
	}

	prompt := BuildEvaluationPrompt(EvaluationRequest{Application: app, LenderName: "Empty Lender"})

	for _, want := range []string{
		"- Name: N/A\n",
		"- Annual revenue: N/A\n",
		"- PayNet score: N/A\n",
		"- Bankruptcy: Yes (discharged 2021-06-01)\n",
		"- Down payment percent: N/A\n",
		"- Age in years: N/A\n",
		"- Mileage: N/A\n",
		"- State: N/A\n",
		"- none published\n",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestBuildEvaluationPrompt_CriteriaOrderPreserved(t *testing.T) {
	req := EvaluationRequest{
		Application: createTestApplication(),
		LenderName:  "Ordered",
		Criteria: []models.Criterion{
			{Key: "z_last", DisplayName: "Zed", Value: "z"},
			{Key: "a_first", DisplayName: "Ay", Value: true},
		},
	}

	prompt := BuildEvaluationPrompt(req)

	assert.Less(t, strings.Index(prompt, "(z_last)"), strings.Index(prompt, "(a_first)"))
	assert.Contains(t, prompt, "- Zed (z_last): z [Type: string, Required: false, Category: general]")
	assert.Contains(t, prompt, "- Ay (a_first): true [Type: string")
}

func TestBuildExtractionPrompt(t *testing.T) {
	withName := BuildExtractionPrompt("Stearns Bank")
	assert.Contains(t, withName, `"Stearns Bank"`)
	assert.Contains(t, withName, `"criteria"`)

	withoutName := BuildExtractionPrompt("")
	assert.NotContains(t, withoutName, "expected to be")
}
