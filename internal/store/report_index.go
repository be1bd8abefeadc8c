package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/eligibility"
)

// ReportIndexMapping is the mapping EnsureIndex creates the report index with.
const ReportIndexMapping = `{
  "mappings": {
    "properties": {
      "report_id":               {"type": "keyword"},
      "application_id":          {"type": "keyword"},
      "business_name":           {"type": "text"},
      "state":                   {"type": "keyword"},
      "matched_lender_ids":      {"type": "keyword"},
      "unmatched_lender_ids":    {"type": "keyword"},
      "total_lenders_evaluated": {"type": "integer"},
      "analyzed_at":             {"type": "date"},
      "matches": {
        "type": "nested",
        "properties": {
          "lender_id":        {"type": "keyword"},
          "lender_name":      {"type": "keyword"},
          "confidence_score": {"type": "float"}
        }
      }
    }
  }
}`

const (
	defaultMatchesSize = 20
	maxMatchesSize     = 100
)

// ReportDocument is what gets indexed per report.
type ReportDocument struct {
	ReportID              string        `json:"report_id"`
	ApplicationID         string        `json:"application_id"`
	BusinessName          string        `json:"business_name,omitempty"`
	State                 string        `json:"state,omitempty"`
	MatchedLenderIDs      []string      `json:"matched_lender_ids"`
	UnmatchedLenderIDs    []string      `json:"unmatched_lender_ids"`
	TotalLendersEvaluated int           `json:"total_lenders_evaluated"`
	AnalyzedAt            time.Time     `json:"analyzed_at"`
	Matches               []LenderMatch `json:"matches"`
}

type LenderMatch struct {
	LenderID        string  `json:"lender_id"`
	LenderName      string  `json:"lender_name"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// ApplicationMatch is one application a lender was matched to.
type ApplicationMatch struct {
	ReportID        string    `json:"report_id"`
	ApplicationID   string    `json:"application_id"`
	BusinessName    string    `json:"business_name,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// ReportIndex answers "which applications matched this lender".
type ReportIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewReportIndex(client *elasticsearch.Client, index string, log logger.Logger) *ReportIndex {
	return &ReportIndex{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "report_index", "index": index}),
	}
}

// NewReportDocument flattens a report for indexing.
func NewReportDocument(reportID, businessName, state string, r *eligibility.EligibilityReport) ReportDocument {
	doc := ReportDocument{
		ReportID:              reportID,
		ApplicationID:         r.ApplicationID,
		BusinessName:          businessName,
		State:                 state,
		MatchedLenderIDs:      r.MatchedLenderIDs(),
		UnmatchedLenderIDs:    make([]string, len(r.UnmatchedLenders)),
		TotalLendersEvaluated: r.TotalLendersEvaluated,
		AnalyzedAt:            r.AnalysisTimestamp,
		Matches:               make([]LenderMatch, len(r.MatchedLenders)),
	}
	for i, j := range r.UnmatchedLenders {
		doc.UnmatchedLenderIDs[i] = j.LenderID
	}
	for i, j := range r.MatchedLenders {
		doc.Matches[i] = LenderMatch{LenderID: j.LenderID, LenderName: j.LenderName, ConfidenceScore: j.ConfidenceScore}
	}
	return doc
}

// Index writes doc under its report id.
func (x *ReportIndex) Index(ctx context.Context, doc ReportDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal report document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: doc.ReportID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index report: %s", res.String())
	}
	return nil
}

// MatchesForLender returns the most recent reports that matched lenderID,
// newest first.
func (x *ReportIndex) MatchesForLender(ctx context.Context, lenderID string, size int) ([]ApplicationMatch, error) {
	if size <= 0 {
		size = defaultMatchesSize
	}
	if size > maxMatchesSize {
		size = maxMatchesSize
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"matched_lender_ids": lenderID}},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"analyzed_at": map[string]interface{}{"order": "desc"}},
		},
	}
	body, _ := json.Marshal(query)

	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search reports: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source ReportDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]ApplicationMatch, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		m := ApplicationMatch{
			ReportID:      h.Source.ReportID,
			ApplicationID: h.Source.ApplicationID,
			BusinessName:  h.Source.BusinessName,
			AnalyzedAt:    h.Source.AnalyzedAt,
		}
		for _, lm := range h.Source.Matches {
			if lm.LenderID == lenderID {
				m.ConfidenceScore = lm.ConfidenceScore
				break
			}
		}
		out = append(out, m)
	}

	x.logger.Debug("Lender matches searched", map[string]interface{}{"lenderId": lenderID, "hits": len(out)})
	return out, nil
}
