package extractlendercriteria

// Input carries the guideline document inline. Document is standard
// base64 as produced by the process' upload form.
type Input struct {
	Document   string `json:"document"`
	MimeType   string `json:"mimeType,omitempty"`
	LenderName string `json:"lenderName,omitempty"`
	Persist    *bool  `json:"persist,omitempty"`
}

type Output struct {
	LenderID      string `json:"lenderId,omitempty"`
	LenderName    string `json:"lenderName"`
	CriteriaCount int    `json:"criteriaCount"`
	Persisted     bool   `json:"persisted"`
	Message       string `json:"message"`
}
