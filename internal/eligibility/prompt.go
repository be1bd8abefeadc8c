package eligibility

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"lender-matching/internal/models"
)

const notAvailable = "N/A"

// BuildEvaluationPrompt renders the application facts and one lender's
// criteria. The output depends only on req.
func BuildEvaluationPrompt(req EvaluationRequest) string {
	app := req.Application
	var b strings.Builder

	b.WriteString("You are an equipment finance underwriting analyst. Decide whether the loan application below ")
	b.WriteString("fits the credit policy of the named lender.\n\n")

	b.WriteString("APPLICATION\n")
	b.WriteString("Business:\n")
	line(&b, "Name", app.BusinessInfo.BusinessName)
	line(&b, "Type", app.BusinessInfo.BusinessType)
	line(&b, "Industry", app.BusinessInfo.Industry)
	line(&b, "Years in business", strconv.FormatFloat(app.BusinessInfo.YearsInBusiness, 'f', -1, 64))
	line(&b, "Annual revenue", moneyPtr(app.BusinessInfo.AnnualRevenue))
	line(&b, "Employees", intPtr(app.BusinessInfo.NumberOfEmployees))

	b.WriteString("Credit:\n")
	line(&b, "FICO score", strconv.Itoa(app.CreditInfo.FICOScore))
	line(&b, "PayNet score", intPtr(app.CreditInfo.PaynetScore))
	bankruptcy := yesNo(app.CreditInfo.HasBankruptcy)
	if app.CreditInfo.HasBankruptcy && app.CreditInfo.BankruptcyDischargeDate != nil {
		bankruptcy += " (discharged " + *app.CreditInfo.BankruptcyDischargeDate + ")"
	}
	line(&b, "Bankruptcy", bankruptcy)
	line(&b, "Judgments", yesNo(app.CreditInfo.HasJudgments))
	line(&b, "Foreclosure", yesNo(app.CreditInfo.HasForeclosure))
	line(&b, "Repossession", yesNo(app.CreditInfo.HasRepossession))

	b.WriteString("Loan:\n")
	line(&b, "Requested amount", money(app.LoanDetails.RequestedAmount))
	line(&b, "Down payment", money(app.LoanDetails.DownPayment))
	if pct, ok := app.LoanDetails.DownPaymentPercent(); ok {
		line(&b, "Down payment percent", strconv.FormatFloat(pct, 'f', 1, 64)+"%")
	} else {
		line(&b, "Down payment percent", notAvailable)
	}
	line(&b, "Term", fmt.Sprintf("%d months", app.LoanDetails.LoanTermMonths))
	line(&b, "Purpose", app.LoanDetails.LoanPurpose)

	b.WriteString("Equipment:\n")
	line(&b, "Type", app.EquipmentInfo.EquipmentType)
	line(&b, "Category", app.EquipmentInfo.EquipmentCategory)
	line(&b, "Age in years", intPtr(app.EquipmentInfo.EquipmentAgeYears))
	line(&b, "Condition", app.EquipmentInfo.EquipmentCondition)
	line(&b, "Purchase type", app.EquipmentInfo.PurchaseType)
	mileage := notAvailable
	if app.EquipmentInfo.EquipmentMileage != nil {
		mileage = humanize.Comma(int64(*app.EquipmentInfo.EquipmentMileage))
	}
	line(&b, "Mileage", mileage)

	b.WriteString("Location:\n")
	line(&b, "State", app.ContactInfo.State)
	if app.AdditionalNotes != nil && strings.TrimSpace(*app.AdditionalNotes) != "" {
		b.WriteString("Notes:\n")
		line(&b, "Applicant notes", strings.TrimSpace(*app.AdditionalNotes))
	}

	fmt.Fprintf(&b, "\nLENDER: %s\nCriteria:\n", req.LenderName)
	if len(req.Criteria) == 0 {
		b.WriteString("- none published\n")
	}
	for _, c := range req.Criteria {
		b.WriteString(criterionLine(c))
		b.WriteByte('\n')
	}

	b.WriteString(`
RULES
1. Judge every criterion above, required and optional, against the application facts. A required
   criterion that is not met makes the application ineligible for this lender.
2. Criteria that are not required only raise or lower your confidence.
3. Minimum values (min_fico_score, min_years_in_business, ...): the application value must be
   greater than or equal to the required value.
4. Maximum values (max_loan_amount, max_equipment_age, ...): the application value must be less
   than or equal to the required value.
5. Boolean flags (allows_bankruptcy, allows_judgments, ...): the criterion fails only when the
   application conflicts with the flag.
6. Lists (excluded_industries, excluded_states, ...): the application value must NOT be in the list.
7. Credit ratings (A, B, C, D, E): map the FICO score onto the lender's tiers.
8. If the lender's information for a criterion is missing or unclear, be lenient and note it in
   the reasoning.
9. confidence_score is your probability in [0, 1] that the lender would approve. It must be at
   least 0.5 when overall_match is true and below 0.5 when it is false.
10. Suggestions must be concrete changes the applicant could make to qualify.

Reply with JSON only, in exactly this shape:
{
  "overall_match": true,
  "confidence_score": 0.0,
  "overall_reasoning": "string",
  "criteria_evaluations": [
    {
      "criteria_key": "string",
      "display_name": "string",
      "required_value": 680,
      "actual_value": 720,
      "met": true,
      "reasoning": "string"
    }
  ],
  "improvement_suggestions": ["string"]
}
`)
	return b.String()
}

// BuildExtractionPrompt asks the oracle to read a lender guideline document.
// lenderName is a hint only and may be empty.
func BuildExtractionPrompt(lenderName string) string {
	var b strings.Builder
	b.WriteString("The attached document is an equipment finance lender's credit guideline. ")
	b.WriteString("Extract every eligibility requirement it states.\n")
	if lenderName != "" {
		fmt.Fprintf(&b, "The lender is expected to be %q; use the name printed in the document if it differs.\n", lenderName)
	}
	b.WriteString(`
For each requirement produce one criterion:
- criteria_key: snake_case identifier, for example min_fico_score, max_loan_amount, excluded_states
- criteria_value: the threshold or list exactly as the document states it (number, string, boolean or array)
- criteria_type: one of number, string, boolean, array, range
- display_name: short human readable label
- description: one sentence of context, or null
- category: one of credit, business, loan, equipment, geographic, industry, general
- is_required: false only when the document calls the requirement preferred or optional

Reply with JSON only, in exactly this shape:
{
  "lender_name": "string",
  "contact": {"representative": null, "email": null, "phone": null},
  "criteria": [
    {
      "criteria_key": "string",
      "criteria_value": null,
      "criteria_type": "string",
      "display_name": "string",
      "description": null,
      "category": "general",
      "is_required": true
    }
  ]
}
`)
	return b.String()
}

func criterionLine(c models.Criterion) string {
	category := "general"
	if c.Category != nil && *c.Category != "" {
		category = *c.Category
	}
	typ := c.Type
	if typ == "" {
		typ = "string"
	}
	return fmt.Sprintf("- %s (%s): %s [Type: %s, Required: %t, Category: %s]",
		c.DisplayName, c.Key, formatValue(c.Value), typ, c.Required, category)
}

func line(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = notAvailable
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func money(f float64) string {
	return "$" + humanize.FormatFloat("#,###.##", f)
}

func moneyPtr(f *float64) string {
	if f == nil {
		return notAvailable
	}
	return money(*f)
}

func intPtr(i *int) string {
	if i == nil {
		return notAvailable
	}
	return strconv.Itoa(*i)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
