// Package extraction turns a lender guideline document into structured
// lender criteria with the help of the oracle.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/validation"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
	"lender-matching/internal/oracle"
	"lender-matching/internal/store"
)

const (
	defaultCriteriaType = "string"
	pdfMimeType         = "application/pdf"
)

var allowedMimeTypes = map[string]bool{
	pdfMimeType:  true,
	"image/png":  true,
	"image/jpeg": true,
	"text/plain": true,
}

// LenderWriter stores a lender together with its criteria atomically.
type LenderWriter interface {
	CreateLenderWithCriteria(ctx context.Context, l *models.Lender, criteria []models.Criterion) ([]models.Criterion, error)
}

type ExtractRequest struct {
	Document   []byte
	MimeType   string
	LenderName string
	Persist    bool
}

type ExtractResult struct {
	Message           string                `json:"message"`
	LenderID          string                `json:"lender_id,omitempty"`
	LenderName        string                `json:"lender_name"`
	Contact           *models.LenderContact `json:"contact,omitempty"`
	CriteriaCount     int                   `json:"criteria_count"`
	ExtractedCriteria []models.Criterion    `json:"extracted_criteria"`
}

type Service struct {
	extractor eligibility.Extractor
	lenders   LenderWriter
	logger    logger.Logger
}

func NewService(extractor eligibility.Extractor, lenders LenderWriter, log logger.Logger) *Service {
	return &Service{
		extractor: extractor,
		lenders:   lenders,
		logger:    log.WithFields(map[string]interface{}{"component": "extraction_service"}),
	}
}

type extractedPayload struct {
	LenderName *string               `json:"lender_name"`
	Contact    *models.LenderContact `json:"contact"`
	Criteria   []extractedCriterion  `json:"criteria"`
}

type extractedCriterion struct {
	CriteriaKey   string      `json:"criteria_key"`
	CriteriaValue interface{} `json:"criteria_value"`
	CriteriaType  *string     `json:"criteria_type"`
	DisplayName   string      `json:"display_name"`
	Description   *string     `json:"description"`
	Category      *string     `json:"category"`
	IsRequired    *bool       `json:"is_required"`
}

var extractionSchema = validation.MustCompile("extraction", map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"criteria"},
	"properties": map[string]interface{}{
		"lender_name": map[string]interface{}{"type": []interface{}{"string", "null"}},
		"contact":     map[string]interface{}{"type": []interface{}{"object", "null"}},
		"criteria": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"criteria_key":  map[string]interface{}{"type": []interface{}{"string", "null"}},
					"criteria_type": map[string]interface{}{"type": []interface{}{"string", "null"}},
					"display_name":  map[string]interface{}{"type": []interface{}{"string", "null"}},
					"description":   map[string]interface{}{"type": []interface{}{"string", "null"}},
					"category":      map[string]interface{}{"type": []interface{}{"string", "null"}},
					"is_required":   map[string]interface{}{"type": []interface{}{"boolean", "null"}},
				},
			},
		},
	},
})

// ExtractCriteria reads a guideline document and, when asked, stores the
// lender with its criteria.
func (s *Service) ExtractCriteria(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if len(req.Document) == 0 {
		return nil, apperrors.NewInvalidInputError("document is empty")
	}
	mimeType := req.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(req.Document)
	}
	mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if !allowedMimeTypes[mimeType] {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unsupported document type %q", mimeType))
	}

	log := s.logger.WithFields(map[string]interface{}{"lenderName": req.LenderName, "documentBytes": len(req.Document)})
	log.Info("Extracting lender criteria", nil)

	raw, err := s.extractor.GenerateExtraction(ctx, req.Document, mimeType, eligibility.BuildExtractionPrompt(req.LenderName))
	if err != nil {
		if errors.Is(err, oracle.ErrTimeout) {
			return nil, apperrors.NewOracleTimeoutError(err)
		}
		return nil, apperrors.NewOracleError(err)
	}

	var payload extractedPayload
	if err := eligibility.DecodeOracleJSON(raw, extractionSchema, &payload); err != nil {
		return nil, apperrors.NewMalformedResponseError(err)
	}

	result := &ExtractResult{
		LenderName:        resolveLenderName(payload.LenderName, req.LenderName),
		Contact:           payload.Contact,
		ExtractedCriteria: toCriteria(payload.Criteria),
	}
	result.CriteriaCount = len(result.ExtractedCriteria)

	if len(result.ExtractedCriteria) == 0 {
		return nil, apperrors.NewExtractionFailedError("no criteria found in document", nil)
	}

	if !req.Persist {
		result.Message = fmt.Sprintf("Extracted %d criteria", result.CriteriaCount)
		return result, nil
	}

	if result.LenderName == "" {
		return nil, apperrors.NewInvalidInputError("lender name is required to save extracted criteria")
	}
	lender := &models.Lender{Name: result.LenderName, Contact: payload.Contact}
	saved, err := s.lenders.CreateLenderWithCriteria(ctx, lender, result.ExtractedCriteria)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("lender %q already exists", lender.Name))
		}
		return nil, apperrors.NewDatabaseInsertFailedError("create_lender", err)
	}

	result.LenderID = lender.ID
	result.ExtractedCriteria = saved
	result.Message = fmt.Sprintf("Extracted %d criteria for %s", result.CriteriaCount, lender.Name)
	log.Info("Lender criteria saved", map[string]interface{}{"lenderId": lender.ID, "criteria": result.CriteriaCount})
	return result, nil
}

// resolveLenderName prefers the name printed in the document.
func resolveLenderName(extracted *string, provided string) string {
	if extracted != nil && strings.TrimSpace(*extracted) != "" {
		return strings.TrimSpace(*extracted)
	}
	return strings.TrimSpace(provided)
}

func toCriteria(in []extractedCriterion) []models.Criterion {
	out := make([]models.Criterion, 0, len(in))
	for _, c := range in {
		key := strings.TrimSpace(c.CriteriaKey)
		name := strings.TrimSpace(c.DisplayName)
		if key == "" || name == "" {
			continue
		}
		criterion := models.Criterion{
			Key:         key,
			Value:       c.CriteriaValue,
			Type:        defaultCriteriaType,
			DisplayName: name,
			Description: c.Description,
			Category:    c.Category,
			Required:    true,
		}
		if c.CriteriaType != nil && *c.CriteriaType != "" {
			criterion.Type = *c.CriteriaType
		}
		if c.IsRequired != nil {
			criterion.Required = *c.IsRequired
		}
		out = append(out, criterion)
	}
	return out
}
