package sendeligibilitynotification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"

	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
)

const emailSubject = "Your equipment financing eligibility results"

type messageData struct {
	ContactName     string
	BusinessName    string
	RequestedAmount string
	Matched         []lenderLine
	UnmatchedCount  int
	Total           int
}

type lenderLine struct {
	Name        string
	Confidence  string
	Reasoning   string
	Suggestions []string
}

var textTemplate = template.Must(template.New("text").Parse(`Hi {{.ContactName}},

We compared the financing request for {{.BusinessName}} ({{.RequestedAmount}}) against {{.Total}} lenders.
{{if .Matched}}
You look like a fit for {{len .Matched}} of them:
{{range .Matched}}
- {{.Name}} ({{.Confidence}} confidence): {{.Reasoning}}
{{- end}}
{{else}}
None of our lenders are a match right now.
{{end}}
{{- if .UnmatchedCount}}
{{.UnmatchedCount}} lenders were not a match this time.
{{end}}`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hi {{.ContactName}},</p>
<p>We compared the financing request for <strong>{{.BusinessName}}</strong> ({{.RequestedAmount}}) against {{.Total}} lenders.</p>
{{if .Matched}}<ul>
{{range .Matched}}<li><strong>{{.Name}}</strong> ({{.Confidence}} confidence): {{.Reasoning}}{{if .Suggestions}}<ul>{{range .Suggestions}}<li>{{.}}</li>{{end}}</ul>{{end}}</li>
{{end}}</ul>
{{else}}<p>None of our lenders are a match right now.</p>
{{end}}`))

func newMessageData(snapshot *models.ApplicationSnapshot, report *eligibility.EligibilityReport) messageData {
	contact := strings.TrimSpace(snapshot.ContactInfo.ContactName)
	if contact == "" {
		contact = "there"
	}
	data := messageData{
		ContactName:     contact,
		BusinessName:    snapshot.BusinessInfo.BusinessName,
		RequestedAmount: "$" + humanize.FormatFloat("#,###.##", snapshot.LoanDetails.RequestedAmount),
		UnmatchedCount:  len(report.UnmatchedLenders),
		Total:           report.TotalLendersEvaluated,
	}
	for _, j := range report.MatchedLenders {
		data.Matched = append(data.Matched, lenderLine{
			Name:        j.LenderName,
			Confidence:  formatConfidence(j.ConfidenceScore),
			Reasoning:   j.OverallReasoning,
			Suggestions: j.ImprovementSuggestions,
		})
	}
	return data
}

func formatConfidence(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// renderEmail returns the plain text and HTML bodies.
func renderEmail(data messageData) (string, string, error) {
	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	return text.String(), html.String(), nil
}

// renderSMS fits the result into a single short message.
func renderSMS(data messageData) string {
	if len(data.Matched) == 0 {
		return fmt.Sprintf("%s: no lender matches yet. Check your email for details.", data.BusinessName)
	}
	top := data.Matched[0]
	return fmt.Sprintf("%s matched %d of %d lenders. Top match: %s (%s). Check your email for details.",
		data.BusinessName, len(data.Matched), data.Total, top.Name, top.Confidence)
}
